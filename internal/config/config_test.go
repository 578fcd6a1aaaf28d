package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.BaseURL == "" {
		t.Error("base url default missing")
	}
	if cfg.QRAuthority != "qr.kstu.kg" {
		t.Errorf("qr authority = %q", cfg.QRAuthority)
	}
	if cfg.RequestTimeout != 10*time.Second {
		t.Errorf("request timeout = %v", cfg.RequestTimeout)
	}
	if cfg.UploadTimeout != 30*time.Second {
		t.Errorf("upload timeout = %v", cfg.UploadTimeout)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("KSTU_QR_AUTHORITY", "qr.test.local")
	t.Setenv("KSTU_REQUEST_TIMEOUT", "3s")
	t.Setenv("KSTU_UPLOAD_TIMEOUT", "45")

	cfg := Load()
	if cfg.QRAuthority != "qr.test.local" {
		t.Errorf("qr authority = %q", cfg.QRAuthority)
	}
	if cfg.RequestTimeout != 3*time.Second {
		t.Errorf("request timeout = %v", cfg.RequestTimeout)
	}
	// Bare integers are read as seconds.
	if cfg.UploadTimeout != 45*time.Second {
		t.Errorf("upload timeout = %v", cfg.UploadTimeout)
	}
}
