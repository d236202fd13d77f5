// Package config holds suCGI's compile-time configuration: the
// constants that spec.md §6 requires be baked into the binary rather
// than read from a file at runtime. Default() returns the values the
// reference implementation ships with; a local build that needs
// different limits is expected to fork Default() and recompile, not to
// point the binary at a config file.
//
// The one runtime use of a TOML encoder in this package is Dump, which
// backs the informational `-C` flag: it marshals the compiled-in
// Config for an operator to inspect, it never unmarshals one back in.
package config

import (
	"fmt"
	"regexp"

	"github.com/pelletier/go-toml/v2"
)

// Handler maps a filename suffix to the interpreter program that runs
// it. An empty Program means "refuse to run scripts with this suffix".
type Handler struct {
	Suffix  string `toml:"suffix"`
	Program string `toml:"program"`
}

// Config is the full set of compile-time constants the pipeline
// consults. Field names mirror the macro names in spec.md §6 so the
// mapping between the two is mechanical.
type Config struct {
	UserDir string `toml:"user_dir"`

	MinUID uint32 `toml:"min_uid"`
	MaxUID uint32 `toml:"max_uid"`
	MinGID uint32 `toml:"min_gid"`
	MaxGID uint32 `toml:"max_gid"`

	EnvPatterns []string `toml:"env_patterns"`

	Handlers []Handler `toml:"handlers"`

	Path  string `toml:"path"`
	Umask uint32 `toml:"umask"`

	MaxFnameLen   int `toml:"max_fname_len"`
	MaxStrLen     int `toml:"max_str_len"`
	MaxVarLen     int `toml:"max_var_len"`
	MaxVarNameLen int `toml:"max_varname_len"`
	MaxNGroups    int `toml:"max_ngroups"`
	MaxNVars      int `toml:"max_nvars"`

	SyslogFacility string `toml:"syslog_facility"`
	SyslogMask     string `toml:"syslog_mask"`
	SyslogPError   bool   `toml:"syslog_perror"`
}

// Default returns the configuration the reference implementation's
// params.h ships as its defaults: MIN_UID/MAX_UID/MIN_GID/MAX_GID as
// on a generic Linux build, the stock Apache/RFC 3875 environment
// allow-list, a single .php handler, and /usr/bin:/bin as the child's
// PATH.
func Default() Config {
	return Config{
		UserDir: "public_html",

		MinUID: 1000,
		MaxUID: 60000,
		MinGID: 1000,
		MaxGID: 60000,

		EnvPatterns: append([]string(nil), defaultEnvPatterns...),

		Handlers: []Handler{
			{Suffix: ".php", Program: "php"},
		},

		Path:  "/usr/bin:/bin",
		Umask: 0o077 | 0o1000 | 0o4000 | 0o2000, // S_ISUID|S_ISGID|S_ISVTX|S_IRWXG|S_IRWXO

		MaxFnameLen:   1024,
		MaxStrLen:     8192,
		MaxVarLen:     8192,
		MaxVarNameLen: 256,
		MaxNGroups:    64,
		MaxNVars:      256,

		SyslogFacility: "auth",
		SyslogMask:     "err",
		SyslogPError:   true,
	}
}

// defaultEnvPatterns is the stock Apache / RFC 3875 variable allow-list
// from the reference implementation's params.h, translated from
// fnmatch-style literals (each already anchored with ^...$) into POSIX
// extended regular expressions as spec.md §6 requires. The %SAN / DN
// enumeration patterns collapse a family of "_<N>" suffixed variables
// (SSL certificate subject/issuer RDN and SAN entries) into a single
// anchored numeric-suffix alternative.
var defaultEnvPatterns = []string{
	`^AUTH_TYPE$`, `^CONTENT_LENGTH$`, `^CONTENT_TYPE$`,
	`^CONTEXT_DOCUMENT_ROOT$`, `^CONTEXT_PREFIX$`,
	`^DATE_GMT$`, `^DATE_LOCAL$`,
	`^DOCUMENT_NAME$`, `^DOCUMENT_PATH_INFO$`, `^DOCUMENT_URI$`,
	`^GATEWAY_INTERFACE$`, `^HANDLER$`,
	`^HTTP_ACCEPT$`, `^HTTP_COOKIE$`, `^HTTP_FORWARDED$`, `^HTTP_HOST$`,
	`^HTTP_PROXY_CONNECTION$`, `^HTTP_REFERER$`, `^HTTP_USER_AGENT$`,
	`^HTTP2$`, `^HTTPS$`, `^IS_SUBREQ$`, `^IPV6$`, `^LAST_MODIFIED$`,
	`^PATH_INFO$`, `^PATH_TRANSLATED$`,
	`^QUERY_STRING$`, `^QUERY_STRING_UNESCAPED$`,
	`^REMOTE_ADDR$`, `^REMOTE_HOST$`, `^REMOTE_IDENT$`, `^REMOTE_PORT$`, `^REMOTE_USER$`,
	`^REDIRECT_ERROR_NOTES$`, `^REDIRECT_HANDLER$`, `^REDIRECT_QUERY_STRING$`,
	`^REDIRECT_REMOTE_USER$`, `^REDIRECT_SCRIPT_FILENAME$`, `^REDIRECT_STATUS$`, `^REDIRECT_URL$`,
	`^REQUEST_LOG_ID$`, `^REQUEST_METHOD$`, `^REQUEST_SCHEME$`, `^REQUEST_STATUS$`, `^REQUEST_URI$`,
	`^SCRIPT_FILENAME$`, `^SCRIPT_NAME$`, `^SCRIPT_URI$`, `^SCRIPT_URL$`,
	`^SERVER_ADMIN$`, `^SERVER_NAME$`, `^SERVER_ADDR$`, `^SERVER_PORT$`,
	`^SERVER_PROTOCOL$`, `^SERVER_SIGNATURE$`, `^SERVER_SOFTWARE$`,
	`^SSL_CIPHER$`, `^SSL_CIPHER_EXPORT$`, `^SSL_CIPHER_USEKEYSIZE$`, `^SSL_CIPHER_ALGKEYSIZE$`,
	`^SSL_CLIENT_M_VERSION$`, `^SSL_CLIENT_M_SERIAL$`,
	`^SSL_CLIENT_S_DN$`, `^SSL_CLIENT_S_DN_[A-Za-z]+(_[0-9]+)?$`,
	`^SSL_CLIENT_SAN_Email_[0-9]+$`, `^SSL_CLIENT_SAN_DNS_[0-9]+$`, `^SSL_CLIENT_SAN_OTHER_msUPN_[0-9]+$`,
	`^SSL_CLIENT_I_DN$`, `^SSL_CLIENT_I_DN_[A-Za-z]+(_[0-9]+)?$`,
	`^SSL_CLIENT_V_START$`, `^SSL_CLIENT_V_END$`, `^SSL_CLIENT_V_REMAIN$`,
	`^SSL_CLIENT_A_SIG$`, `^SSL_CLIENT_A_KEY$`, `^SSL_CLIENT_CERT$`,
	`^SSL_CLIENT_CERT_CHAIN_[0-9]+$`, `^SSL_CLIENT_CERT_RFC4523_CEA$`, `^SSL_CLIENT_VERIFY$`,
	`^SSL_COMPRESS_METHOD$`, `^SSL_PROTOCOL$`, `^SSL_SECURE_RENEG$`,
	`^SSL_SERVER_M_VERSION$`, `^SSL_SERVER_M_SERIAL$`,
	`^SSL_SERVER_S_DN_[A-Za-z]+(_[0-9]+)?$`,
	`^SSL_SERVER_SAN_Email_[0-9]+$`, `^SSL_SERVER_SAN_DNS_[0-9]+$`, `^SSL_SERVER_SAN_OTHER_dnsSRV_[0-9]+$`,
	`^SSL_SERVER_I_DN_[A-Za-z]+(_[0-9]+)?$`,
	`^SSL_SERVER_V_START$`, `^SSL_SERVER_V_END$`,
	`^SSL_SERVER_A_SIG$`, `^SSL_SERVER_A_KEY$`, `^SSL_SERVER_CERT$`,
	`^SSL_SESSION_ID$`, `^SSL_SESSION_RESUMED$`,
	`^SSL_SRP_USER$`, `^SSL_SRP_USERINFO$`, `^SSL_TLS_SNI$`,
	`^SSL_VERSION_INTERFACE$`, `^SSL_VERSION_LIBRARY$`,
	`^UNIQUE_ID$`, `^USER_NAME$`, `^THE_REQUEST$`,
	`^TIME_YEAR$`, `^TIME_MON$`, `^TIME_DAY$`, `^TIME_HOUR$`, `^TIME_MIN$`, `^TIME_SEC$`, `^TIME_WDAY$`, `^TIME$`,
	`^TZ$`,
}

// Compiled compiles every pattern in EnvPatterns once. A compile
// failure is always a configuration error and is fatal per spec.md
// §4.8 step 6.
func (c Config) Compiled() ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(c.EnvPatterns))
	for _, pat := range c.EnvPatterns {
		re, err := regexp.Compile(pat)
		if err != nil {
			return nil, fmt.Errorf("failed to compile env pattern %q: %w", pat, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// Dump renders c as TOML for the `-C` flag. It exists purely for
// operator inspection; suCGI never reads a config file back in at
// runtime (spec.md §6).
func Dump(c Config) (string, error) {
	b, err := toml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to render configuration: %w", err)
	}
	return string(b), nil
}
