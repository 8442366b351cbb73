package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(`
digest: SHA-256
keys:
  installer:
    key: /etc/signing/installer.key
    certificate: /etc/signing/installer.pem
  bundle:
    pkcs12: /etc/signing/bundle.p12
    password: hunter2
`))
	require.NoError(t, err)
	assert.Equal(t, "SHA-256", cfg.Digest)

	keyConf, err := cfg.GetKey("installer")
	require.NoError(t, err)
	assert.Equal(t, "installer", keyConf.Name())
	assert.Equal(t, "/etc/signing/installer.key", keyConf.Key)

	keyConf, err = cfg.GetKey("bundle")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", keyConf.Password)

	_, err = cfg.GetKey("missing")
	assert.Error(t, err)
}

func TestGetKeyIncomplete(t *testing.T) {
	cfg, err := Parse([]byte(`
keys:
  partial:
    key: /etc/signing/only.key
`))
	require.NoError(t, err)
	_, err = cfg.GetKey("partial")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pkcs12")
}

func TestNoKeys(t *testing.T) {
	cfg, err := Parse([]byte("digest: SHA-512\n"))
	require.NoError(t, err)
	_, err = cfg.GetKey("anything")
	assert.Error(t, err)
}
