package ssh

import (
	"os"
	osuser "os/user"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/kevinburke/ssh_config"

	"github.com/liliang-cn/logparser/pkg/logger"
)

// SSHConfigEntry holds the ~/.ssh/config settings that apply to one host.
type SSHConfigEntry struct {
	HostName string
	User     string
	Port     int
	KeyPath  string
}

// sshConfigCache caches the parsed ~/.ssh/config
type sshConfigCache struct {
	once sync.Once
	path string
	cfg  *ssh_config.Config
}

var globalSSHConfig = &sshConfigCache{}

// load parses the file on first use. A file that cannot be parsed, for
// example because it uses Match blocks, is ignored with a warning.
func (c *sshConfigCache) load() *ssh_config.Config {
	c.once.Do(func() {
		p := c.path
		if p == "" {
			home, _ := os.UserHomeDir()
			p = filepath.Join(home, ".ssh", "config")
		}
		f, err := os.Open(p)
		if err != nil {
			if !os.IsNotExist(err) {
				logger.Warn("ignoring %s: %v", p, err)
			}
			return
		}
		defer f.Close()

		cfg, err := ssh_config.Decode(f)
		if err != nil {
			logger.Warn("ignoring %s: %v", p, err)
			return
		}
		c.cfg = cfg
	})
	return c.cfg
}

// lookupSSHConfig returns the settings of cfg for spec.Address. As in
// ssh(1), the first value found for each setting wins.
func lookupSSHConfig(cfg *ssh_config.Config, spec HostSpec) SSHConfigEntry {
	var entry SSHConfigEntry
	if cfg == nil {
		return entry
	}

	host := spec.Address
	get := func(key string) string {
		v, err := cfg.Get(host, key)
		if err != nil {
			return ""
		}
		return v
	}

	entry.User = get("User")
	remoteUser := spec.User
	if !spec.UserSet && entry.User != "" {
		remoteUser = entry.User
	}

	entry.HostName = expandTokens(get("HostName"), host, remoteUser)
	if port, err := strconv.Atoi(get("Port")); err == nil {
		entry.Port = port
	}

	if key := get("IdentityFile"); key != "" {
		resolved := host
		if entry.HostName != "" {
			resolved = entry.HostName
		}
		entry.KeyPath = expandPath(expandTokens(key, resolved, remoteUser))
	}

	return entry
}

// expandTokens expands the %h, %r, %d, %u and %% tokens of ssh_config(5).
// Other tokens are left as they are.
func expandTokens(s, host, remoteUser string) string {
	if !strings.Contains(s, "%") {
		return s
	}

	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '%' || i+1 == len(s) {
			b.WriteByte(s[i])
			continue
		}
		i++
		switch s[i] {
		case 'h':
			b.WriteString(host)
		case 'r':
			b.WriteString(remoteUser)
		case 'd':
			home, _ := os.UserHomeDir()
			b.WriteString(home)
		case 'u':
			if u, err := osuser.Current(); err == nil {
				b.WriteString(u.Username)
			}
		case '%':
			b.WriteByte('%')
		default:
			b.WriteByte('%')
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// applySSHConfig fills the unset fields of spec from ~/.ssh/config.
func applySSHConfig(spec HostSpec) HostSpec {
	return mergeSSHConfig(spec, lookupSSHConfig(globalSSHConfig.load(), spec))
}

func mergeSSHConfig(spec HostSpec, entry SSHConfigEntry) HostSpec {
	result := spec

	// HostName resolves aliases, but never replaces an IP address.
	if entry.HostName != "" && !isIP(result.Address) {
		result.Address = entry.HostName
	}
	if !result.UserSet && entry.User != "" {
		result.User = entry.User
	}
	if !result.PortSet && entry.Port != 0 {
		result.Port = entry.Port
	}
	if !result.KeyPathSet && entry.KeyPath != "" {
		result.KeyPath = entry.KeyPath
	}

	return result
}
