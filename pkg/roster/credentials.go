package roster

import (
	"encoding/base64"
	"encoding/json"
	"os"
	"strings"

	pferrors "github.com/odvcencio/portalflow/pkg/errors"
	"github.com/odvcencio/portalflow/pkg/execution"
)

// Obscure encodes a password for the credentials file. This is reversible
// encoding so the password is not stored as readable text; it is not
// encryption.
func Obscure(password string) string {
	return base64.StdEncoding.EncodeToString([]byte(password))
}

// Reveal reverses Obscure.
func Reveal(obscured string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(obscured))
	if err != nil {
		return "", pferrors.Wrap(err, pferrors.ErrCodeConfigParse, "password is not an obscured value").
			WithRemediation("regenerate it with `portalflow roster obscure <password>`")
	}
	return string(raw), nil
}

type credentialsFile struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type teacherFile struct {
	Name string `json:"name"`
}

// LoadCredentials reads {"username", "password"} where password is obscured.
func LoadCredentials(path string) (execution.Credentials, error) {
	var f credentialsFile
	if err := readJSON(path, &f); err != nil {
		return execution.Credentials{}, err
	}
	if strings.TrimSpace(f.Username) == "" || strings.TrimSpace(f.Password) == "" {
		return execution.Credentials{}, pferrors.New(pferrors.ErrCodeConfigInvalid, "credentials file needs username and password").
			WithContext("path", path)
	}
	password, err := Reveal(f.Password)
	if err != nil {
		return execution.Credentials{}, err
	}
	return execution.Credentials{Username: strings.TrimSpace(f.Username), Password: password}, nil
}

// CredentialsFrom adapts LoadCredentials for execution.Options.
func CredentialsFrom(path string) execution.CredentialsFunc {
	return func() (execution.Credentials, error) { return LoadCredentials(path) }
}

// LoadTeacher reads {"name": "Jane Smith"}.
func LoadTeacher(path string) (string, error) {
	var f teacherFile
	if err := readJSON(path, &f); err != nil {
		return "", err
	}
	name := strings.TrimSpace(f.Name)
	if name == "" {
		return "", pferrors.New(pferrors.ErrCodeConfigInvalid, "teacher file has no name").WithContext("path", path)
	}
	return name, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return pferrors.Wrap(err, pferrors.ErrCodeConfigLoad, "read file").WithContext("path", path)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return pferrors.Wrap(err, pferrors.ErrCodeConfigParse, "decode file").WithContext("path", path)
	}
	return nil
}
