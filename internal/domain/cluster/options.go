package cluster

// Option configures a Clusterer.
type Option func(*Clusterer)

// WithIDFunc replaces the cluster ID generator.
func WithIDFunc(fn func() string) Option {
	return func(c *Clusterer) {
		if fn != nil {
			c.newID = fn
		}
	}
}
