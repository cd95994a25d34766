package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/nylssoft/goadaptivefirewall/internal/rule"
	"github.com/nylssoft/goadaptivefirewall/internal/subnet"
	"gopkg.in/natefinch/lumberjack.v2"
)

const version = "0.1.0"

// upper bound for the block time exponent
const maxFailuresLimit = 20

type configRule struct {
	Name      string `json:"name"`
	Condition string `json:"condition"`
}

type config_impl struct {
	mu       sync.Mutex
	filename string
	subnets  []subnet.Subnet
	ignore   []rule.Rule
	Events   struct {
		SecurityLogFilename string `json:"securityLogFilename"`
		RdpLogFilename      string `json:"rdpLogFilename"`
		PollSeconds         int    `json:"pollSeconds"`
	} `json:"events"`
	Database struct {
		Filename      string `json:"filename"`
		RetentionDays int    `json:"retentionDays"`
	} `json:"database"`
	Logger struct {
		Filename string `json:"filename"`
		MaxSize  int    `json:"maxsize"`
		MaxAge   int    `json:"maxage"`
		Verbose  bool   `json:"verbose"`
	} `json:"logger"`
	Firewall struct {
		Comment        string `json:"comment"`
		DelayMinutes   int    `json:"delayMinutes"`
		MaxFailures    int    `json:"maxFailures"`
		Port           int    `json:"port"`
		TimeoutSeconds int    `json:"timeoutSeconds"`
	} `json:"firewall"`
	Policy struct {
		Threshold     int `json:"threshold"`
		WindowMinutes int `json:"windowMinutes"`
	} `json:"policy"`
	LocalSubnetsSetting string `json:"localSubnets"`
	Tracker             struct {
		RedisAddr string `json:"redisAddr"`
		KeyPrefix string `json:"keyPrefix"`
	} `json:"tracker"`
	Rules struct {
		Ignore []configRule `json:"ignore"`
	} `json:"rules"`
}

func (cfg *config_impl) setDefaults() {
	cfg.Events.PollSeconds = 10
	cfg.Database.RetentionDays = 30
	cfg.Firewall.Comment = "goadaptivefirewall"
	cfg.Firewall.DelayMinutes = 60
	cfg.Firewall.MaxFailures = 10
	cfg.Firewall.TimeoutSeconds = 30
	cfg.Policy.Threshold = 5
	cfg.Policy.WindowMinutes = 60
	cfg.Tracker.KeyPrefix = "goadaptivefirewall:failures:"
}

func (cfg *config_impl) Init(filename string) error {
	data, err := os.ReadFile(filename)
	if err == nil {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return err
	}
	cfg.filename = filename
	fmt.Println("Blocks remote addresses of failed RDP logons and sessions in the firewall.")
	fmt.Println("  config file          :", filename)
	fmt.Println("  log file             :", cfg.Logger.Filename)
	fmt.Println("  security log export  :", cfg.Events.SecurityLogFilename)
	fmt.Println("  rdp log export       :", cfg.Events.RdpLogFilename)
	fmt.Println("  sqlite database file :", cfg.Database.Filename)
	err = canWriteFile(cfg.Logger.Filename, "log")
	if err == nil {
		err = canWriteFile(cfg.Database.Filename, "database")
	}
	if err == nil {
		err = cfg.checkEventFiles()
	}
	if err == nil {
		err = cfg.checkNumbers()
	}
	if err == nil {
		err = cfg.updateIgnoreRules()
	}
	if err != nil {
		return err
	}
	log.SetOutput(&lumberjack.Logger{
		Filename: cfg.Logger.Filename,
		MaxSize:  cfg.Logger.MaxSize,
		MaxAge:   cfg.Logger.MaxAge,
		Compress: true})
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds | log.LUTC)
	log.Println("goadaptivefirewall version", version)
	log.Println()
	log.Printf("Block after %d logon failures within %d minutes. Session failures are blocked immediately.\n",
		cfg.Policy.Threshold, cfg.Policy.WindowMinutes)
	cfg.setSubnets(cfg.LocalSubnetsSetting)
	log.Println()
	log.Println("Rules to ignore failures:")
	for _, r := range cfg.ignore {
		log.Printf("  %s: %s\n", r.Name, r.Condition)
	}
	log.Println()
	return nil
}

func (cfg *config_impl) ReloadLocalSubnets() ([]subnet.Subnet, error) {
	data, err := os.ReadFile(cfg.filename)
	if err != nil {
		return nil, err
	}
	var reloaded struct {
		LocalSubnetsSetting string `json:"localSubnets"`
	}
	if err = json.Unmarshal(data, &reloaded); err != nil {
		return nil, err
	}
	log.Println("Reloaded local subnets from config file", cfg.filename)
	return cfg.setSubnets(reloaded.LocalSubnetsSetting), nil
}

func (cfg *config_impl) setSubnets(setting string) []subnet.Subnet {
	subnets, skipped := subnet.ParseSubnets(setting)
	for _, s := range skipped {
		log.Printf("WARN: Skipped local subnet %s.\n", s)
	}
	log.Println("Local subnets:")
	for _, s := range subnets {
		log.Println("  ", s)
	}
	cfg.mu.Lock()
	defer cfg.mu.Unlock()
	cfg.LocalSubnetsSetting = setting
	cfg.subnets = subnets
	return slices.Clone(subnets)
}

func (cfg *config_impl) IsVerbose() bool {
	return cfg.Logger.Verbose
}

func (cfg *config_impl) EventFilenames() []string {
	var ret []string
	for _, filename := range []string{cfg.Events.SecurityLogFilename, cfg.Events.RdpLogFilename} {
		if len(filename) > 0 {
			ret = append(ret, filename)
		}
	}
	return ret
}

func (cfg *config_impl) PollInterval() time.Duration {
	return time.Duration(cfg.Events.PollSeconds) * time.Second
}

func (cfg *config_impl) DatabaseFilename() string {
	return cfg.Database.Filename
}

func (cfg *config_impl) DatabaseRetention() time.Duration {
	return time.Duration(cfg.Database.RetentionDays) * 24 * time.Hour
}

func (cfg *config_impl) FirewallComment() string {
	return cfg.Firewall.Comment
}

func (cfg *config_impl) FirewallDelay() time.Duration {
	return time.Duration(cfg.Firewall.DelayMinutes) * time.Minute
}

func (cfg *config_impl) FirewallMaxFailures() int {
	return cfg.Firewall.MaxFailures
}

func (cfg *config_impl) FirewallPort() int {
	return cfg.Firewall.Port
}

func (cfg *config_impl) FirewallTimeout() time.Duration {
	return time.Duration(cfg.Firewall.TimeoutSeconds) * time.Second
}

func (cfg *config_impl) Threshold() int {
	return cfg.Policy.Threshold
}

func (cfg *config_impl) Window() time.Duration {
	return time.Duration(cfg.Policy.WindowMinutes) * time.Minute
}

func (cfg *config_impl) LocalSubnets() []subnet.Subnet {
	cfg.mu.Lock()
	defer cfg.mu.Unlock()
	return slices.Clone(cfg.subnets)
}

func (cfg *config_impl) RedisAddr() string {
	return cfg.Tracker.RedisAddr
}

func (cfg *config_impl) RedisKeyPrefix() string {
	return cfg.Tracker.KeyPrefix
}

func (cfg *config_impl) IsIgnoredFailure(ip string, user string, domain string, eventID int) bool {
	data := rule.FailureData(ip, user, domain, eventID)
	for _, r := range cfg.ignore {
		if r.Matches(data) {
			if cfg.IsVerbose() {
				log.Printf("Ignore failure of IP %s, user '%s' using rule '%s'.\n", ip, user, r.Name)
			}
			return true
		}
	}
	return false
}

func (cfg *config_impl) checkEventFiles() error {
	filenames := cfg.EventFilenames()
	if len(filenames) == 0 {
		return errors.New("missing event log filename in config")
	}
	for _, filename := range filenames {
		if err := canReadFile(filename, "event log"); err != nil {
			return err
		}
	}
	return nil
}

func (cfg *config_impl) checkNumbers() error {
	for _, setting := range []struct {
		name string
		val  int
	}{
		{"events.pollSeconds", cfg.Events.PollSeconds},
		{"firewall.delayMinutes", cfg.Firewall.DelayMinutes},
		{"firewall.maxFailures", cfg.Firewall.MaxFailures},
		{"firewall.timeoutSeconds", cfg.Firewall.TimeoutSeconds},
		{"policy.threshold", cfg.Policy.Threshold},
		{"policy.windowMinutes", cfg.Policy.WindowMinutes},
		{"database.retentionDays", cfg.Database.RetentionDays},
	} {
		if setting.val <= 0 {
			return fmt.Errorf("invalid value %d for '%s' in config", setting.val, setting.name)
		}
	}
	if cfg.Firewall.MaxFailures > maxFailuresLimit {
		return fmt.Errorf("invalid value %d for 'firewall.maxFailures' in config, must not exceed %d", cfg.Firewall.MaxFailures, maxFailuresLimit)
	}
	if cfg.Firewall.Port < 0 || cfg.Firewall.Port > 65535 {
		return fmt.Errorf("invalid value %d for 'firewall.port' in config", cfg.Firewall.Port)
	}
	if len(cfg.Firewall.Comment) == 0 {
		return errors.New("missing 'firewall.comment' in config")
	}
	return nil
}

func (cfg *config_impl) updateIgnoreRules() error {
	cfg.ignore = nil
	for _, cr := range cfg.Rules.Ignore {
		r, err := rule.NewRule(cr.Name, cr.Condition)
		if err != nil {
			return fmt.Errorf("failed to parse rule '%s': %w", cr.Name, err)
		}
		if slices.ContainsFunc(cfg.ignore, func(other rule.Rule) bool { return other.Name == r.Name }) {
			return fmt.Errorf("rule name '%s' is not unique", r.Name)
		}
		cfg.ignore = append(cfg.ignore, r)
	}
	return nil
}

func canReadFile(filename string, desc string) error {
	return canOpenFile(filename, desc, true)
}

func canWriteFile(filename string, desc string) error {
	return canOpenFile(filename, desc, false)
}

func canOpenFile(filename string, desc string, readonly bool) error {
	if len(filename) == 0 {
		return fmt.Errorf("missing %s filename in config", desc)
	}
	var err error
	var file *os.File
	if readonly {
		file, err = os.Open(filename)
	} else {
		file, err = os.OpenFile(filename, os.O_RDWR|os.O_CREATE, 0640)
	}
	if err == nil {
		file.Close()
	}
	return err
}
