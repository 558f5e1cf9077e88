package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-zookeeper/zk"
)

// ZookeeperProvider is a koanf provider reading one znode that holds
// the whole YAML document. koanf has no zookeeper provider of its
// own, so this implements the Provider and Watcher surfaces directly.
type ZookeeperProvider struct {
	conn      *zk.Conn
	path      string
	endpoints []string
}

// NewZookeeperProvider connects to the ensemble. The connection stays
// open for reads and watches until Close.
func NewZookeeperProvider(endpoints []string, path string) (*ZookeeperProvider, error) {
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("zookeeper endpoints are required")
	}
	if path == "" {
		return nil, fmt.Errorf("zookeeper node path is required")
	}

	conn, _, err := zk.Connect(endpoints, 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("connect to zookeeper: %w", err)
	}

	return &ZookeeperProvider{
		conn:      conn,
		path:      path,
		endpoints: endpoints,
	}, nil
}

// ReadBytes returns the raw node content for the YAML parser.
func (p *ZookeeperProvider) ReadBytes() ([]byte, error) {
	data, _, err := p.conn.Get(p.path)
	if err != nil {
		return nil, fmt.Errorf("read zookeeper node %s: %w", p.path, err)
	}
	return data, nil
}

// Read is not supported; this provider hands out raw bytes.
func (p *ZookeeperProvider) Read() (map[string]any, error) {
	return nil, errors.New("zookeeper provider does not support this method")
}

// Watch re-arms a data watch on the node and fires the callback on
// every change. It returns when the node disappears or the watch is
// lost; connection-level events re-arm silently.
func (p *ZookeeperProvider) Watch(cb func(event any, err error)) error {
	for {
		data, _, eventCh, err := p.conn.GetW(p.path)
		if err != nil {
			cb(nil, fmt.Errorf("watch zookeeper node %s: %w", p.path, err))
			time.Sleep(time.Second)
			continue
		}

		event := <-eventCh
		switch event.Type {
		case zk.EventNodeDataChanged:
			cb(data, nil)
		case zk.EventNodeDeleted:
			cb(nil, fmt.Errorf("zookeeper node %s was deleted", p.path))
			return nil
		case zk.EventNotWatching:
			cb(nil, fmt.Errorf("zookeeper watch lost for %s", p.path))
			return nil
		}
	}
}

// Close drops the ensemble connection.
func (p *ZookeeperProvider) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}
