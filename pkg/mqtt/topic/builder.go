package topic

import (
	"strings"
)

// MQTT filter wildcards.
const (
	// Wildcard matches exactly one level.
	Wildcard = "+"
	// MultiWildcard matches the remaining levels and must come last.
	MultiWildcard = "#"
)

// Builder encapsulates the construction of MQTT topic strings.
// Every topic follows {root}/{segment}/{id}.
type Builder struct {
	// root is the base namespace for all topics (e.g. "syncpeer/v1").
	root string
	// share, when set, turns the result into a shared subscription filter.
	share string
}

// NewBuilder creates a Builder for the given root namespace.
func NewBuilder(root string) *Builder {
	return &Builder{root: strings.Trim(root, "/")}
}

// Root returns the namespace prefix.
func (b *Builder) Root() string {
	return b.root
}

// Shared returns a builder whose topics are prefixed with $share/{group}/ so that
// each message is delivered to exactly one member of the group.
func (b *Builder) Shared(group string) *Builder {
	return &Builder{root: b.root, share: group}
}

// Build returns {root}/{segment}/{id}.
func (b *Builder) Build(segment, id string) string {
	return b.build(segment, Escape(id))
}

// BuildWildcard returns {root}/{segment}/+, matching every id under segment.
func (b *Builder) BuildWildcard(segment string) string {
	return b.build(segment, Wildcard)
}

// ID extracts the trailing id level from a concrete topic built by this builder.
func (b *Builder) ID(topic string) string {
	if i := strings.LastIndexByte(topic, '/'); i >= 0 {
		return topic[i+1:]
	}
	return topic
}

func (b *Builder) build(segment, id string) string {
	t := b.root + "/" + segment + "/" + id
	if b.share != "" {
		return "$share/" + b.share + "/" + t
	}
	return t
}

// Escape replaces characters that would break topic levels or act as wildcards.
func Escape(id string) string {
	return strings.NewReplacer("/", "_", Wildcard, "_", MultiWildcard, "_").Replace(id)
}
