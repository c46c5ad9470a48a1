package mongo

import "time"

// Replica set member states as reported by replSetGetStatus.
// See: https://www.mongodb.com/docs/manual/reference/replica-states/
const (
	StatePrimary   = 1
	StateSecondary = 2
)

// StatusMember is one member of the replSetGetStatus reply.
type StatusMember struct {
	ID                int       `bson:"_id"`
	Name              string    `bson:"name"`
	State             int       `bson:"state"`
	Self              bool      `bson:"self,omitempty"`
	Health            int       `bson:"health"`
	LastHeartbeatRecv time.Time `bson:"lastHeartbeatRecv,omitempty"`
	IP                string    `bson:"ip,omitempty"`
}

// Status is the replSetGetStatus reply.
type Status struct {
	Set     string         `bson:"set"`
	MyState int            `bson:"myState"`
	Members []StatusMember `bson:"members"`
}

// Primary returns the current primary member, if any.
func (s *Status) Primary() (StatusMember, bool) {
	for _, m := range s.Members {
		if m.State == StatePrimary {
			return m, true
		}
	}
	return StatusMember{}, false
}

// ConfigMember is one member of the replica set configuration. Fields this
// controller does not manage (priority, votes, tags, ...) round-trip through
// the inline map so a reconfig never clears them.
type ConfigMember struct {
	ID    int                    `bson:"_id"`
	Host  string                 `bson:"host"`
	Extra map[string]interface{} `bson:",inline"`
}

// Config is the replica set configuration document. Settings and protocol
// fields round-trip through the inline map.
type Config struct {
	ID      string                 `bson:"_id"`
	Version int                    `bson:"version"`
	Members []ConfigMember         `bson:"members"`
	Extra   map[string]interface{} `bson:",inline"`
}

// Apply folds additions and removals into the configuration and bumps the
// version. New members continue past the highest existing id so ids are
// never reused within one reconfig. Additions whose host is already
// configured are skipped; at most one entry per address.
func (c *Config) Apply(additions, removals []string) {
	maxID := 0
	present := make(map[string]bool, len(c.Members))
	for _, m := range c.Members {
		if m.ID > maxID {
			maxID = m.ID
		}
		present[m.Host] = true
	}

	if len(removals) > 0 {
		drop := make(map[string]bool, len(removals))
		for _, host := range removals {
			drop[host] = true
		}
		kept := make([]ConfigMember, 0, len(c.Members))
		for _, m := range c.Members {
			if !drop[m.Host] {
				kept = append(kept, m)
			}
		}
		c.Members = kept
	}

	for _, host := range additions {
		if present[host] {
			continue
		}
		present[host] = true
		maxID++
		c.Members = append(c.Members, ConfigMember{ID: maxID, Host: host})
	}

	c.Version++
}
