package config

import (
	"errors"
	"flag"
	"net"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr         string
	DBUrl        string
	TokenSecret  string
	TokenTTL     time.Duration
	RateLimitRPM int
	MaxBodyBytes int64
	Debug        bool
}

func ParseFlags() (cfg Config, err error) {
	var host string
	flag.StringVar(&host, "host", "0.0.0.0", "listen host name (default 0.0.0.0)")
	var port uint
	flag.UintVar(&port, "port", 8080, "listen port number (default 8080)")
	flag.StringVar(&cfg.DBUrl, "db-url", "projectpulse.sqlite", "path to SQLite3 DB file (default projectpulse.sqlite)")
	flag.StringVar(&cfg.TokenSecret, "token-secret", "", "secret key for token signing and validation")
	var ttl uint
	flag.UintVar(&ttl, "token-ttl", 48*3600, "access token TTL in seconds (default 48h)")
	var rpm uint
	flag.UintVar(&rpm, "rate-limit", 600, "per-user request limit per minute (default 600)")
	var maxBody uint
	flag.UintVar(&maxBody, "max-body", 1<<20, "request body size limit in bytes (default 1MiB)")
	flag.BoolVar(&cfg.Debug, "debug", false, "log at DEBUG level")
	flag.Parse()

	cfg.Addr = net.JoinHostPort(host, strconv.Itoa(int(port)))
	cfg.TokenTTL = time.Duration(ttl) * time.Second
	cfg.RateLimitRPM = int(rpm)
	cfg.MaxBodyBytes = int64(maxBody)

	if cfg.TokenSecret == "" {
		err = errors.New("missing parameter -token-secret")
	}

	return
}

func (cfg Config) Url() (url string) {
	url = cfg.Addr
	if strings.HasPrefix(url, "0.0.0.0") {
		url = "localhost" + strings.TrimPrefix(url, "0.0.0.0")
	}
	url = "http://" + url
	return
}
