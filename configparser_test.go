package main

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/uniqush/goconf/conf"
	"github.com/uniqush/log"

	"github.com/pushgate/apnsgate/testutil"
)

func writeConfig(t *testing.T, content string) *conf.ConfigFile {
	t.Helper()
	dir, err := ioutil.TempDir("", "apnsgate-conf")
	if err != nil {
		t.Fatalf("TempDir failed: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	filename := filepath.Join(dir, "apnsgate.conf")
	if err := ioutil.WriteFile(filename, []byte(content), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	c, err := OpenConfig(filename)
	if err != nil {
		t.Fatalf("OpenConfig failed: %v", err)
	}
	return c
}

func TestExtractLogLevel(t *testing.T) {
	cases := []struct {
		loglevel string
		expected int
	}{
		{"alert", log.LOGLEVEL_ALERT},
		{"error", log.LOGLEVEL_ERROR},
		{"warn", log.LOGLEVEL_WARN},
		{"warning", log.LOGLEVEL_WARN},
		{"standard", log.LOGLEVEL_INFO},
		{"verbose", log.LOGLEVEL_INFO},
		{"info", log.LOGLEVEL_INFO},
		{"DEBUG", log.LOGLEVEL_DEBUG},
	}
	for _, c := range cases {
		level, warning := extractLogLevel(c.loglevel)
		testutil.ExpectEquals(t, c.expected, level, c.loglevel)
		testutil.ExpectStringEquals(t, "", warning, "no warning for a supported level")
	}

	level, warning := extractLogLevel("nonsense")
	testutil.ExpectEquals(t, log.LOGLEVEL_INFO, level, "unsupported level falls back to info")
	if warning == "" {
		t.Error("Unsupported loglevel should produce a warning")
	}
}

func TestLoadGatewayConfig(t *testing.T) {
	c := writeConfig(t, `
[Gateway]
sandbox=true
cert=/etc/apnsgate/cert.pem
key=/etc/apnsgate/key.pem
skipverify=true
maxpayloadsize=256
buffersize=50
bufferlifetime=120
connecttimeout=5
frameversion=2

[Feedback]
addr=feedback.example.com:2196
`)
	gc, err := LoadGatewayConfig(c)
	if err != nil {
		t.Fatalf("LoadGatewayConfig failed: %v", err)
	}
	testutil.ExpectEquals(t, true, gc.Sandbox, "sandbox")
	testutil.ExpectStringEquals(t, "/etc/apnsgate/cert.pem", gc.CertFile, "cert")
	testutil.ExpectStringEquals(t, "/etc/apnsgate/key.pem", gc.KeyFile, "key")
	testutil.ExpectEquals(t, true, gc.SkipVerify, "skipverify")
	testutil.ExpectEquals(t, 256, gc.MaxPayloadSize, "maxpayloadsize")
	testutil.ExpectEquals(t, 50, gc.BufferSize, "buffersize")
	testutil.ExpectEquals(t, 2*time.Minute, gc.BufferLifetime, "bufferlifetime in seconds")
	testutil.ExpectEquals(t, 5*time.Second, gc.ConnectTimeout, "connecttimeout in seconds")
	testutil.ExpectEquals(t, 2, gc.FrameVersion, "frameversion")
	testutil.ExpectStringEquals(t, "feedback.example.com:2196", gc.FeedbackAddr, "feedback addr")
}

func TestLoadGatewayConfigDefaults(t *testing.T) {
	c := writeConfig(t, `
[Gateway]
cert=cert.pem
key=key.pem
`)
	gc, err := LoadGatewayConfig(c)
	if err != nil {
		t.Fatalf("LoadGatewayConfig failed: %v", err)
	}
	testutil.ExpectEquals(t, false, gc.Sandbox, "production by default")
	testutil.ExpectEquals(t, 0, gc.MaxPayloadSize, "ceiling left to the service default")
	testutil.ExpectEquals(t, time.Duration(0), gc.BufferLifetime, "lifetime left to the service default")
	testutil.ExpectEquals(t, 0, gc.FrameVersion, "enhanced format by default")
}

func TestLoadGatewayConfigMissingCredentials(t *testing.T) {
	c := writeConfig(t, `
[Gateway]
cert=cert.pem
`)
	if _, err := LoadGatewayConfig(c); err == nil {
		t.Error("Missing key setting should be rejected")
	}

	c = writeConfig(t, `
[Gateway]
key=key.pem
`)
	if _, err := LoadGatewayConfig(c); err == nil {
		t.Error("Missing cert setting should be rejected")
	}
}

func TestLoadGatewayConfigBadFrameVersion(t *testing.T) {
	c := writeConfig(t, `
[Gateway]
cert=cert.pem
key=key.pem
frameversion=3
`)
	if _, err := LoadGatewayConfig(c); err == nil {
		t.Error("frameversion other than 1 or 2 should be rejected")
	}
}

func TestLoadFeedbackInterval(t *testing.T) {
	c := writeConfig(t, `
[Feedback]
interval=60
`)
	testutil.ExpectEquals(t, time.Minute, LoadFeedbackInterval(c), "interval in seconds")

	c = writeConfig(t, "[Feedback]\n")
	testutil.ExpectEquals(t, defaultFeedbackInterval, LoadFeedbackInterval(c), "default interval")
}

func TestLoadDatabaseConfig(t *testing.T) {
	c := writeConfig(t, `
[Database]
engine=redis
host=redis.internal
port=6380
name=2
password=hunter2
`)
	dc, err := LoadDatabaseConfig(c)
	if err != nil {
		t.Fatalf("LoadDatabaseConfig failed: %v", err)
	}
	testutil.ExpectStringEquals(t, "redis", dc.Engine, "engine")
	testutil.ExpectStringEquals(t, "redis.internal", dc.Host, "host")
	testutil.ExpectEquals(t, 6380, dc.Port, "port")
	testutil.ExpectStringEquals(t, "2", dc.Name, "name")
	testutil.ExpectStringEquals(t, "hunter2", dc.Password, "password")
}

func TestLoadDatabaseConfigDefaults(t *testing.T) {
	c := writeConfig(t, "[Database]\n")
	dc, err := LoadDatabaseConfig(c)
	if err != nil {
		t.Fatalf("LoadDatabaseConfig failed: %v", err)
	}
	testutil.ExpectStringEquals(t, "memory", dc.Engine, "memory engine by default")
	testutil.ExpectStringEquals(t, "localhost", dc.Host, "host default")
	testutil.ExpectEquals(t, -1, dc.Port, "port default")
	testutil.ExpectStringEquals(t, "0", dc.Name, "name default")
}

func TestLoadLoggerSilentSwitch(t *testing.T) {
	c := writeConfig(t, `
[Log]
log=false
loglevel=debug
`)
	logger, err := loadLogger(ioutil.Discard, c, "[test]")
	if err != nil {
		t.Fatalf("loadLogger failed: %v", err)
	}
	if logger == nil {
		t.Fatal("loadLogger returned no logger")
	}
}
