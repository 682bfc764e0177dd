package certgen

import (
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
)

func loadCert(t *testing.T, path string) *x509.Certificate {
	t.Helper()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile %s: %v", path, err)
	}
	block, _ := pem.Decode(raw)
	if block == nil || block.Type != "CERTIFICATE" {
		t.Fatalf("%s is not a valid PEM certificate", path)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		t.Fatalf("ParseCertificate %s: %v", path, err)
	}
	return cert
}

func TestGenerateAllWritesFourFilesWithRestrictedPermissions(t *testing.T) {
	dir := t.TempDir()
	if err := GenerateAll(dir, "node1", nil); err != nil {
		t.Fatalf("GenerateAll: %v", err)
	}

	for _, name := range []string{"ca.crt", "ca.key", "node1.crt", "node1.key"} {
		path := filepath.Join(dir, name)
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("Stat %s: %v", name, err)
		}
		if perm := info.Mode().Perm(); perm != 0600 {
			t.Errorf("%s: permissions got %o want 0600", name, perm)
		}
	}
}

func TestGenerateAllNodeCertIsSignedByCA(t *testing.T) {
	dir := t.TempDir()
	if err := GenerateAll(dir, "node2", nil); err != nil {
		t.Fatalf("GenerateAll: %v", err)
	}

	caCert := loadCert(t, filepath.Join(dir, "ca.crt"))
	if !caCert.IsCA {
		t.Error("ca.crt should be marked as a CA certificate")
	}

	nodeCert := loadCert(t, filepath.Join(dir, "node2.crt"))
	if err := nodeCert.CheckSignatureFrom(caCert); err != nil {
		t.Errorf("node cert should be signed by the generated CA: %v", err)
	}
	if nodeCert.Subject.CommonName != "node2" {
		t.Errorf("node cert CommonName: got %q want node2", nodeCert.Subject.CommonName)
	}
}

func TestGenerateAllNodeCertIncludesExtraSANs(t *testing.T) {
	dir := t.TempDir()
	opts := &Options{ExtraDNS: []string{"rep.example.com"}}
	if err := GenerateAll(dir, "node3", opts); err != nil {
		t.Fatalf("GenerateAll: %v", err)
	}

	nodeCert := loadCert(t, filepath.Join(dir, "node3.crt"))
	found := false
	for _, name := range nodeCert.DNSNames {
		if name == "rep.example.com" {
			found = true
		}
	}
	if !found {
		t.Errorf("node cert DNSNames %v should include the extra SAN", nodeCert.DNSNames)
	}
}

func TestGenerateAllCreatesDirectoryIfMissing(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "certs")
	if err := GenerateAll(dir, "node4", nil); err != nil {
		t.Fatalf("GenerateAll into a missing directory: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "ca.crt")); err != nil {
		t.Errorf("ca.crt should exist under the created directory: %v", err)
	}
}
