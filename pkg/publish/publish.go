// Package publish mirrors deserializer state into a redis hash so that
// other processes on the board can watch the links.
package publish

import (
	"fmt"
	"strconv"

	"github.com/garyburd/redigo/redis"
	"github.com/go-logr/logr"

	"github.com/OpenTraceLab/OpenTraceGMSL/pkg/max96724"
)

// DefaultKey is the hash written when no key is configured.
const DefaultKey = "gmsl"

// Conn is the subset of redis.Conn used by the publisher.
type Conn interface {
	Do(cmd string, args ...interface{}) (interface{}, error)
	Close() error
}

// Publisher writes status snapshots with HMSET and announces each update on
// the channel named after the hash.
type Publisher struct {
	conn Conn
	key  string
	log  logr.Logger
}

// Dial connects to the redis server at addr ("host:port").
func Dial(addr, key string, log logr.Logger) (*Publisher, error) {
	c, err := redis.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("publish: dial %s: %w", addr, err)
	}
	return New(c, key, log), nil
}

// New wraps an existing connection.
func New(conn Conn, key string, log logr.Logger) *Publisher {
	if key == "" {
		key = DefaultKey
	}
	return &Publisher{conn: conn, key: key, log: log}
}

// Key returns the hash name.
func (p *Publisher) Key() string {
	return p.key
}

// Publish stores the snapshot and the status read-back.
func (p *Publisher) Publish(snap max96724.Snapshot, st max96724.Status) error {
	fields := Fields(snap, st)
	args := redis.Args{}.Add(p.key).AddFlat(fields)
	if _, err := p.conn.Do("HMSET", args...); err != nil {
		return fmt.Errorf("publish: hmset %s: %w", p.key, err)
	}
	n, err := redis.Int(p.conn.Do("PUBLISH", p.key, "update"))
	if err != nil {
		return fmt.Errorf("publish: notify %s: %w", p.key, err)
	}
	p.log.V(1).Info("status published", "key", p.key, "fields", len(fields), "subscribers", n)
	return nil
}

// Close closes the connection.
func (p *Publisher) Close() error {
	return p.conn.Close()
}

// Fields flattens the state into dotted hash fields.
func Fields(snap max96724.Snapshot, st max96724.Status) map[string]string {
	f := map[string]string{
		"chip":             snap.Variant.String(),
		"link.setup":       strconv.FormatBool(snap.LinkSetupDone),
		"lane.setup":       strconv.FormatBool(snap.LaneSetupDone),
		"sources.found":    strconv.Itoa(snap.SourcesFound),
		"sources.attached": strconv.Itoa(snap.AttachedRefCount),
		"splitter":         strconv.FormatBool(snap.SplitterEnabled),
		"src.link":         snap.SrcLink.String(),
		"dst.port":         snap.DstCSIPort.String(),
		"lanes":            strconv.Itoa(int(snap.LaneCount)),
		"power.refcount":   strconv.Itoa(snap.PowerRefCount),

		"status.link":        st.State.String(),
		"status.link.locked": strconv.FormatBool(st.State.Locked()),
		"status.dpll":        st.DPLL.String(),
		"status.video":       st.Video.String(),
		"status.de":          st.DE.String(),
		"status.hs":          st.HS.String(),
		"status.vs":          st.VS.String(),
	}
	if st.ReadErr != nil {
		f["status.error"] = st.ReadErr.Error()
	}
	for i, src := range snap.Sources {
		prefix := fmt.Sprintf("source.%d.", i)
		f[prefix+"owner"] = src.Owner.String()
		f[prefix+"link"] = src.Link.String()
		f[prefix+"port"] = src.DstCSIPort.String()
		f[prefix+"lanes"] = strconv.Itoa(int(src.NumCSILanes))
		f[prefix+"streaming"] = strconv.FormatBool(src.StreamingEnabled)
	}
	for _, pipe := range snap.Pipes {
		if pipe.RefCount == 0 {
			continue
		}
		prefix := fmt.Sprintf("pipe.%d.", pipe.ID)
		f[prefix+"dt"] = pipe.DataType.String()
		f[prefix+"controller"] = strconv.Itoa(int(pipe.DstCSIController))
		f[prefix+"refcount"] = strconv.Itoa(pipe.RefCount)
	}
	return f
}
