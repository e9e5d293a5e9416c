package cfg

import "time"

type Command string

const (
	CommandClone   Command = "clone"
	CommandCompare Command = "compare"
	CommandServe   Command = "serve"
)

type Cfg struct {
	Command Command

	// Shared configuration
	ConfigPath string
	Prefix     string // empty means use the config file value
	OutDir     string
	Timeout    time.Duration // zero means use the config file value
	Retries    int           // zero means use the config file value
	CurlPath   string
	DBPath     string
	UserAgent  string

	// clone
	Only  string
	Pause bool

	// compare
	CompareType     string
	CompareOriginal string
	CompareCloned   string

	// serve
	Port         string
	APIAccessKey string

	Debug   bool
	Version string
}
