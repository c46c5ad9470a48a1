package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	driver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"k8s.io/klog/v2"
)

// Error codes mongod reports through replSetGetStatus. These are inputs to
// the reconciler's state machine, not failures.
const (
	codeInvalidReplicaSetConfig = 93
	codeNotYetInitialized       = 94
)

const dialTimeout = 5 * time.Second

// Client wraps an admin connection to a single mongod instance.
type Client struct {
	client   *driver.Client
	database string
}

// Dial opens a direct connection to the mongod at addr and verifies it with
// a ping. The connection must not be routed through replica set discovery:
// the whole point is to talk to this one instance, initialized or not.
func Dial(ctx context.Context, addr, database string) (*Client, error) {
	opts := options.Client().
		ApplyURI("mongodb://" + addr).
		SetDirect(true).
		SetServerSelectionTimeout(dialTimeout)

	cl, err := driver.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	if err := cl.Ping(ctx, nil); err != nil {
		_ = cl.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to reach %s: %w", addr, err)
	}

	return &Client{client: cl, database: database}, nil
}

// Close releases the connection.
func (c *Client) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

func (c *Client) db() *driver.Database {
	return c.client.Database(c.database)
}

// Status runs replSetGetStatus. Codes 93 and 94 come back as classified
// errors recognizable via IsInvalidConfig and IsNotYetInitialized.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var st Status
	err := c.db().RunCommand(ctx, bson.D{{Key: "replSetGetStatus", Value: 1}}).Decode(&st)
	if err != nil {
		return nil, fmt.Errorf("replSetGetStatus: %w", err)
	}
	return &st, nil
}

// Initiate forms a new single-member replica set. mongod derives the set
// name from its own --replSet and seeds the sole member with a locally
// derived address, so the member is rewritten to primaryAddress afterwards
// to make it reachable by peers.
func (c *Client) Initiate(ctx context.Context, primaryAddress string) error {
	klog.InfoS("Initiating replica set", "primary", primaryAddress)

	err := c.db().RunCommand(ctx, bson.D{{Key: "replSetInitiate", Value: bson.D{}}}).Err()
	if err != nil {
		return fmt.Errorf("replSetInitiate: %w", err)
	}

	cfg, err := c.config(ctx)
	if err != nil {
		return err
	}
	if len(cfg.Members) != 1 {
		return fmt.Errorf("expected a single member after initiation, got %d", len(cfg.Members))
	}
	if cfg.Members[0].Host == primaryAddress {
		return nil
	}

	cfg.Members[0].Host = primaryAddress
	cfg.Version++
	return c.reconfig(ctx, cfg, true)
}

// Reconfigure reads the current configuration, folds in additions and
// removals, and submits the result as one replSetReconfig. A single RPC is
// required so the set never passes through an intermediate membership that
// could drop quorum.
func (c *Client) Reconfigure(ctx context.Context, additions, removals []string, force bool) error {
	cfg, err := c.config(ctx)
	if err != nil {
		return err
	}

	cfg.Apply(additions, removals)

	klog.InfoS("Submitting replica set reconfig",
		"version", cfg.Version,
		"additions", additions,
		"removals", removals,
		"force", force)

	return c.reconfig(ctx, cfg, force)
}

func (c *Client) config(ctx context.Context) (*Config, error) {
	var out struct {
		Config Config `bson:"config"`
	}
	err := c.db().RunCommand(ctx, bson.D{{Key: "replSetGetConfig", Value: 1}}).Decode(&out)
	if err != nil {
		return nil, fmt.Errorf("replSetGetConfig: %w", err)
	}
	return &out.Config, nil
}

func (c *Client) reconfig(ctx context.Context, cfg *Config, force bool) error {
	cmd := bson.D{
		{Key: "replSetReconfig", Value: cfg},
		{Key: "force", Value: force},
	}
	if err := c.db().RunCommand(ctx, cmd).Err(); err != nil {
		return fmt.Errorf("replSetReconfig: %w", err)
	}
	return nil
}

// InReplSet opens a short-lived connection to the instance at addr and asks
// whether it belongs to a replica set. NotYetInitialized means no; any other
// failure is surfaced so the caller can treat the answer as unknown.
func InReplSet(ctx context.Context, addr, database string) (bool, error) {
	cl, err := Dial(ctx, addr, database)
	if err != nil {
		return false, err
	}
	defer cl.Close(context.Background())

	_, err = cl.Status(ctx)
	if err == nil {
		return true, nil
	}
	if IsNotYetInitialized(err) {
		return false, nil
	}
	return false, err
}

func commandCode(err error) int {
	var ce driver.CommandError
	if errors.As(err, &ce) {
		return int(ce.Code)
	}
	return 0
}

// IsNotYetInitialized reports whether the instance has no replica set
// configuration at all (code 94).
func IsNotYetInitialized(err error) bool {
	return commandCode(err) == codeNotYetInitialized
}

// IsInvalidConfig reports whether the instance considers its replica set
// configuration unrecoverable (code 93).
func IsInvalidConfig(err error) bool {
	return commandCode(err) == codeInvalidReplicaSetConfig
}
