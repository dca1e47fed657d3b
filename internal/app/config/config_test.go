package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
domain:
  id: 7
policy:
  target_samples: 10
nats:
  url: nats://broker:4222
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Domain.ID != 7 {
		t.Fatalf("expected domain 7, got %d", cfg.Domain.ID)
	}
	if cfg.Domain.Topic != "ChocolateTemperature" {
		t.Fatalf("expected default topic, got %s", cfg.Domain.Topic)
	}
	if cfg.Transport != TransportNATS {
		t.Fatalf("expected nats transport, got %s", cfg.Transport)
	}
	if cfg.Policy.WaitTimeout != 4*time.Second {
		t.Fatalf("expected WaitTimeout default 4s, got %s", cfg.Policy.WaitTimeout)
	}
	if cfg.Policy.TargetSamples != 10 {
		t.Fatalf("expected target 10, got %d", cfg.Policy.TargetSamples)
	}
	if cfg.NATS.SubjectPrefix != "tempflow" {
		t.Fatalf("expected default subject prefix, got %s", cfg.NATS.SubjectPrefix)
	}
	if cfg.Metrics.Addr != "" || cfg.Journal.Dir != "" || cfg.Timescale.ConnString != "" {
		t.Fatalf("expected optional sections to stay disabled, got %+v %+v %+v", cfg.Metrics, cfg.Journal, cfg.Timescale)
	}
}

func TestLoadHelloTopic(t *testing.T) {
	cfg, err := Load(writeConfig(t, "domain:\n  type: hello\ntransport: memory\n"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Domain.Topic != "Example HelloMessage" {
		t.Fatalf("expected hello topic, got %s", cfg.Domain.Topic)
	}
}

func TestLoadOPCUAFallsBackToNodeID(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
transport: opcua
opcua:
  endpoint: opc.tcp://localhost:4840
  nodes:
    - node_id: "ns=2;s=Demo.Dynamic.Scalar.Double"
`))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.OPCUA.Nodes[0].SensorID != "ns=2;s=Demo.Dynamic.Scalar.Double" {
		t.Fatalf("expected sensor ID fallback to node ID, got %s", cfg.OPCUA.Nodes[0].SensorID)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"domain range":   "domain:\n  id: 500\n",
		"unknown type":   "domain:\n  type: pressure\n",
		"transport":      "transport: dds\n",
		"verbosity":      "log:\n  verbosity: 9\n",
		"opcua no nodes": "transport: opcua\nopcua:\n  endpoint: opc.tcp://x\n",
		"nats wildcard":  "nats:\n  subject_prefix: \"a.*\"\n",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, data)); err == nil {
				t.Fatalf("expected error for %s", name)
			}
		})
	}
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	if cfg.SensorID == "" || cfg.Log.Format != "text" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestParseDefersValidation(t *testing.T) {
	path := writeConfig(t, "log:\n  verbosity: 9\n")

	if _, err := Load(path); err == nil {
		t.Fatalf("expected load to reject verbosity 9")
	}

	cfg, err := Parse(path)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Log.Format != "text" {
		t.Fatalf("expected defaults to be applied, got format %q", cfg.Log.Format)
	}
	cfg.Log.Verbosity = 2
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected corrected config to validate: %v", err)
	}
}
