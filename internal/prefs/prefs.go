package prefs

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/ytget/musicdl/internal/client"
)

// Default values
const (
	DefaultHost = "localhost"
	DefaultPort = 22222
)

// FileName is the preference file kept under the app's config directory.
const FileName = "musicdl.toml"

type fileData struct {
	User     string `toml:"user"`
	Password string `toml:"password"`
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
}

// Prefs is the persisted key-value login data: user, password, host and port.
// Values are written through to a TOML file on every set.
type Prefs struct {
	path string
	data fileData
}

// Load reads the preference file at path, creating an empty store when the
// file does not exist yet.
func Load(path string) (*Prefs, error) {
	p := &Prefs{path: path, data: fileData{Host: DefaultHost, Port: DefaultPort}}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return p, nil
	}
	if _, err := toml.DecodeFile(path, &p.data); err != nil {
		return nil, err
	}
	if p.data.Host == "" {
		p.data.Host = DefaultHost
	}
	if p.data.Port == 0 {
		p.data.Port = DefaultPort
	}
	return p, nil
}

// DefaultPath returns the preference file location under the user's config
// directory.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "musicdl", FileName), nil
}

// GetUser returns the stored username.
func (p *Prefs) GetUser() string { return p.data.User }

// GetPassword returns the stored password.
func (p *Prefs) GetPassword() string { return p.data.Password }

// GetHost returns the stored host.
func (p *Prefs) GetHost() string { return p.data.Host }

// GetPort returns the stored port.
func (p *Prefs) GetPort() int { return p.data.Port }

// SetLoginData stores all four login fields at once.
func (p *Prefs) SetLoginData(user, password, host string, port int) error {
	p.data = fileData{User: user, Password: password, Host: host, Port: port}
	return p.save()
}

// Clear removes the stored user and password, keeping host and port.
func (p *Prefs) Clear() error {
	p.data.User = ""
	p.data.Password = ""
	return p.save()
}

// Credentials assembles the stored fields. ok is false when any field needed
// for a connection is missing.
func (p *Prefs) Credentials() (creds client.Credentials, ok bool) {
	creds = client.Credentials{
		Username: p.data.User,
		Password: p.data.Password,
		Host:     p.data.Host,
		Port:     p.data.Port,
	}
	return creds, creds.Complete()
}

func (p *Prefs) save() error {
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(p.path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(p.data)
}
