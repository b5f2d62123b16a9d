package clickhouse

import (
	"testing"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
)

func TestNewClientRequiresHost(t *testing.T) {
	if _, err := NewClient(); err == nil {
		t.Fatal("expected error without host")
	}
}

func TestBuildOptions(t *testing.T) {
	cfg := ClientConfig{
		Host:         "ch.local",
		Port:         8123,
		Database:     "marketboard",
		User:         "u",
		Password:     "p",
		UseHTTP:      true,
		AsyncInsert:  true,
		WaitForAsync: true,
		MaxExecTime:  90 * time.Second,
	}
	o := buildOptions(cfg)
	if len(o.Addr) != 1 || o.Addr[0] != "ch.local:8123" {
		t.Fatalf("addr = %v", o.Addr)
	}
	if o.Protocol != ch.HTTP {
		t.Fatalf("protocol = %v", o.Protocol)
	}
	if o.Auth.Database != "default" || o.Auth.Username != "u" {
		t.Fatalf("auth = %+v", o.Auth)
	}
	if o.Settings["max_execution_time"] != 90 || o.Settings["async_insert"] != 1 || o.Settings["wait_for_async_insert"] != 1 {
		t.Fatalf("settings = %v", o.Settings)
	}
}

func TestBuildOptionsNative(t *testing.T) {
	o := buildOptions(ClientConfig{Host: "h", Port: 9000})
	if o.Protocol != ch.Native || len(o.Settings) != 0 {
		t.Fatalf("options = %+v", o)
	}
}
