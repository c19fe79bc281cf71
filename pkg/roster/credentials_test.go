package roster

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pferrors "github.com/odvcencio/portalflow/pkg/errors"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestObscureReveal(t *testing.T) {
	obscured := Obscure("s3cret!")
	assert.NotEqual(t, "s3cret!", obscured)

	got, err := Reveal(obscured)
	require.NoError(t, err)
	assert.Equal(t, "s3cret!", got)

	_, err = Reveal("not base64 ***")
	assert.True(t, pferrors.IsCode(err, pferrors.ErrCodeConfigParse))
}

func TestLoadCredentials(t *testing.T) {
	path := writeFile(t, "credentials.json", `{"username": " jsmith@district.org ", "password": "`+Obscure("pw")+`"}`)

	creds, err := LoadCredentials(path)
	require.NoError(t, err)
	assert.Equal(t, "jsmith@district.org", creds.Username)
	assert.Equal(t, "pw", creds.Password)

	creds, err = CredentialsFrom(path)()
	require.NoError(t, err)
	assert.Equal(t, "pw", creds.Password)
}

func TestLoadCredentials_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		code    pferrors.ErrorCode
	}{
		{name: "bad json", content: `{`, code: pferrors.ErrCodeConfigParse},
		{name: "missing password", content: `{"username": "a"}`, code: pferrors.ErrCodeConfigInvalid},
		{name: "plaintext password", content: `{"username": "a", "password": "p@ss word"}`, code: pferrors.ErrCodeConfigParse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadCredentials(writeFile(t, "c.json", tt.content))
			assert.True(t, pferrors.IsCode(err, tt.code), "got %v", err)
		})
	}

	_, err := LoadCredentials(filepath.Join(t.TempDir(), "missing.json"))
	assert.True(t, pferrors.IsCode(err, pferrors.ErrCodeConfigLoad))
}

func TestLoadTeacher(t *testing.T) {
	name, err := LoadTeacher(writeFile(t, "teacher.json", `{"name": "Jane Smith"}`))
	require.NoError(t, err)
	assert.Equal(t, "Jane Smith", name)

	_, err = LoadTeacher(writeFile(t, "teacher.json", `{"name": "  "}`))
	assert.True(t, pferrors.IsCode(err, pferrors.ErrCodeConfigInvalid))
}
