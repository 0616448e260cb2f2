package config

import "testing"

func TestDefaultConfig_Valid(t *testing.T) {
	c := DefaultConfig()
	if err := c.Validate(); err != nil {
		t.Fatalf("default config should validate cleanly, got: %v", err)
	}
}

func TestFromEnv_Overlays(t *testing.T) {
	t.Setenv("SPARQLREL_DSN", "postgres://db.example.org:5432/rq?sslmode=disable")
	t.Setenv("SPARQLREL_SPACE_PREFIX", "ex")
	t.Setenv("SPARQLREL_SPACE_ID", "tenant-1")
	t.Setenv("SPARQLREL_MAX_PATH_DEPTH", "8")
	t.Setenv("SPARQLREL_BADGER_DIR", "/tmp/sparqlrel-spill")
	t.Setenv("SPARQLREL_LOG_LEVEL", "debug")

	c := FromEnv()
	if c.Database.DSN != "postgres://db.example.org:5432/rq?sslmode=disable" {
		t.Errorf("DSN not overlaid: %q", c.Database.DSN)
	}
	if c.Space.Prefix != "ex" || c.Space.SpaceID != "tenant-1" {
		t.Errorf("space not overlaid: %+v", c.Space)
	}
	if c.Query.MaxPathDepth != 8 {
		t.Errorf("max path depth not overlaid: %d", c.Query.MaxPathDepth)
	}
	if c.Cache.BadgerDir != "/tmp/sparqlrel-spill" {
		t.Errorf("badger dir not overlaid: %q", c.Cache.BadgerDir)
	}
	if c.Logging.Level != "debug" {
		t.Errorf("log level not overlaid: %q", c.Logging.Level)
	}
}

func TestFromEnv_InvalidPathDepthIgnored(t *testing.T) {
	t.Setenv("SPARQLREL_MAX_PATH_DEPTH", "not-a-number")
	c := FromEnv()
	if c.Query.MaxPathDepth != DefaultConfig().Query.MaxPathDepth {
		t.Errorf("non-numeric max path depth should fall back to default, got %d", c.Query.MaxPathDepth)
	}
}

func TestValidate_RejectsMissingDSN(t *testing.T) {
	c := DefaultConfig()
	c.Database.DSN = ""
	err := c.Validate()
	if err == nil {
		t.Fatal("expected error for empty DSN")
	}
	cfgErr, ok := err.(*ConfigError)
	if !ok {
		t.Fatalf("expected *ConfigError, got %T", err)
	}
	if cfgErr.Field != "database.dsn" {
		t.Errorf("expected field database.dsn, got %q", cfgErr.Field)
	}
}

func TestValidate_RejectsBadSpace(t *testing.T) {
	c := DefaultConfig()
	c.Space.SpaceID = ""
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for missing space id")
	}
}

func TestValidate_RejectsNonPositiveBounds(t *testing.T) {
	cases := []func(*Config){
		func(c *Config) { c.Database.MaxConnections = 0 },
		func(c *Config) { c.Query.MaxPathDepth = 0 },
		func(c *Config) { c.Query.MaxRows = 0 },
	}
	for _, mutate := range cases {
		c := DefaultConfig()
		mutate(c)
		if err := c.Validate(); err == nil {
			t.Errorf("expected validation error for mutated config %+v", c)
		}
	}
}
