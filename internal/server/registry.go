// Package server tracks the authenticated identity behind each live
// connection.
package server

// role labels a connection as a regular visitor or the privileged admin.
type role int

const (
	roleVisitor role = iota
	roleAdmin
)

func (r role) String() string {
	if r == roleAdmin {
		return "admin"
	}
	return "visitor"
}

// identity is the registered display name and role for one connection.
type identity struct {
	name string
	role role
}

// registry maps live connections to authenticated identities. It is owned by
// the hub event loop and must only be touched from there.
type registry struct {
	entries map[*Client]identity
}

func newRegistry() *registry {
	return &registry{entries: make(map[*Client]identity)}
}

// register records the identity for a connection. Registration is idempotent
// per connection; re-registering overwrites the prior entry. Callers must
// not allow a role change once a room exists for the connection.
func (r *registry) register(c *Client, name string, rl role) {
	r.entries[c] = identity{name: name, role: rl}
}

func (r *registry) lookup(c *Client) (identity, bool) {
	id, ok := r.entries[c]
	return id, ok
}

func (r *registry) unregister(c *Client) {
	delete(r.entries, c)
}

// admins returns every currently registered admin connection.
func (r *registry) admins() []*Client {
	var out []*Client
	for c, id := range r.entries {
		if id.role == roleAdmin {
			out = append(out, c)
		}
	}
	return out
}
