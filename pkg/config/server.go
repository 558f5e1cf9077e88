package config

import "fmt"

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// Host to bind to.
	Host string `yaml:"host,omitempty" json:"host,omitempty" jsonschema:"title=Host,description=Interface to bind,default=0.0.0.0"`

	// Port to listen on.
	Port int `yaml:"port,omitempty" json:"port,omitempty" jsonschema:"title=Port,description=HTTP port,default=8080"`

	// CORS enables permissive cross-origin headers on every route.
	CORS *bool `yaml:"cors,omitempty" json:"cors,omitempty" jsonschema:"title=CORS,description=Allow cross-origin requests,default=true"`

	// ShutdownGraceMS bounds how long Shutdown waits for in-flight
	// requests before closing their connections.
	ShutdownGraceMS int `yaml:"shutdown_grace_ms,omitempty" json:"shutdown_grace_ms,omitempty" jsonschema:"title=Shutdown Grace,description=Graceful shutdown window in milliseconds,default=10000"`
}

func (c *ServerConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.CORS == nil {
		c.CORS = BoolPtr(true)
	}
	if c.ShutdownGraceMS <= 0 {
		c.ShutdownGraceMS = 10000
	}
}

func (c *ServerConfig) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return &SchemaError{Path: "server.port", Reason: fmt.Sprintf("invalid port %d", c.Port)}
	}
	return nil
}

// CORSEnabled reports whether cross-origin headers should be emitted.
func (c *ServerConfig) CORSEnabled() bool {
	return c.CORS == nil || *c.CORS
}

// Address returns the host:port pair the server binds.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
