package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stockmart/auction-engine/internal/config"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr bool
		check   func(t *testing.T, cfg *config.Config)
	}{
		{
			name: "valid full config",
			yaml: `
server:
  api_port: 9090
  ops_port: 9091
database:
  host: "db.example.com"
  port: 5433
  user: "auctiond"
  password: "secret"
  dbname: "auctions"
  sslmode: "require"
  driver: "sqlx"
engine:
  queue_size: 64
  event_buffer_size: 512
  admin_extend_duration: 10m
telemetry:
  service_name: "my-engine"
  otlp_endpoint: "localhost:4318"
`,
			wantErr: false,
			check: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				if cfg.Server.APIPort != 9090 {
					t.Errorf("got api port %d, want %d", cfg.Server.APIPort, 9090)
				}
				if cfg.Database.Port != 5433 {
					t.Errorf("got db port %d, want %d", cfg.Database.Port, 5433)
				}
				if cfg.Engine.QueueSize != 64 {
					t.Errorf("got queue size %d, want %d", cfg.Engine.QueueSize, 64)
				}
				if cfg.Engine.AdminExtendDuration != 10*time.Minute {
					t.Errorf("got admin extend %v, want %v", cfg.Engine.AdminExtendDuration, 10*time.Minute)
				}
				if cfg.Telemetry.ServiceName != "my-engine" {
					t.Errorf("got service name %q, want %q", cfg.Telemetry.ServiceName, "my-engine")
				}
			},
		},
		{
			name:    "defaults applied",
			yaml:    `{}`,
			wantErr: false,
			check: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				if cfg.Database.Host != "localhost" {
					t.Errorf("got db host %q, want %q", cfg.Database.Host, "localhost")
				}
				if cfg.Server.APIPort != 8080 || cfg.Server.OpsPort != 8081 {
					t.Errorf("got ports %d/%d, want 8080/8081", cfg.Server.APIPort, cfg.Server.OpsPort)
				}
				if cfg.Engine.QueueSize != 256 {
					t.Errorf("got queue size %d, want %d", cfg.Engine.QueueSize, 256)
				}
				if cfg.Engine.AdminExtendDuration != 5*time.Minute {
					t.Errorf("got admin extend %v, want %v", cfg.Engine.AdminExtendDuration, 5*time.Minute)
				}
				if cfg.Telemetry.ServiceName != "auctiond" {
					t.Errorf("got service name %q, want %q", cfg.Telemetry.ServiceName, "auctiond")
				}
				if cfg.LeaderElection.LeaseName != "auctiond-leader" {
					t.Errorf("got lease name %q, want %q", cfg.LeaderElection.LeaseName, "auctiond-leader")
				}
			},
		},
		{
			name:    "invalid yaml",
			yaml:    `{{{invalid`,
			wantErr: true,
		},
		{
			name: "ent driver accepted",
			yaml: `
database:
  driver: "ent"
`,
			wantErr: false,
			check: func(t *testing.T, cfg *config.Config) {
				t.Helper()
				if cfg.Database.Driver != "ent" {
					t.Errorf("got driver %q, want %q", cfg.Database.Driver, "ent")
				}
			},
		},
		{
			name: "invalid driver rejected",
			yaml: `
database:
  driver: "mongo"
`,
			wantErr: true,
		},
		{
			name: "zero queue size rejected",
			yaml: `
engine:
  queue_size: -1
`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "config.yaml")
			if err := os.WriteFile(path, []byte(tt.yaml), 0o600); err != nil {
				t.Fatalf("writing config: %v", err)
			}

			cfg, err := config.Load(path)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Load() succeeded, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := config.Load("/nonexistent/config.yaml"); err == nil {
		t.Fatal("Load() succeeded for missing file")
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := config.DatabaseConfig{
		Host: "db", Port: 5432, User: "u", Password: "p", DBName: "auctions", SSLMode: "disable",
	}
	want := "host=db port=5432 user=u password=p dbname=auctions sslmode=disable"
	if got := d.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}
