package firewall

import (
	"log"
	"math"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nylssoft/goadaptivefirewall/internal/executer"
)

type info struct {
	blocked  bool
	from     time.Time
	to       time.Time
	occurred int
}

type firewall_impl struct {
	mu          sync.Mutex
	comment     string
	delay       time.Duration
	maxFailures int
	port        int
	executer    executer.Executer
	now         func() time.Time
	ips         map[string]info
}

func (fw *firewall_impl) Init() {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	fw.ips = make(map[string]info)
	match := "# " + fw.comment
	res, err := fw.executer.Exec("ufw", "status")
	if err == nil {
		for line := range strings.SplitSeq(string(res), "\n") {
			idx := strings.LastIndex(line, match)
			if idx <= 0 {
				continue
			}
			line = line[:idx]
			idx = strings.LastIndex(line, "REJECT")
			if idx <= 0 {
				continue
			}
			ip := strings.TrimSpace(line[idx+len("REJECT"):])
			if len(ip) == 0 {
				continue
			}
			from := fw.now()
			fw.ips[ip] = info{blocked: true, from: from, to: from.Add(fw.delay), occurred: 1}
		}
		log.Println("Found", len(fw.ips), "blocked addresses.")
	}
	checkError("ufw status", err, res)
}

func (fw *firewall_impl) IsBlocked(ip string) bool {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return fw.ips[ip].blocked
}

func (fw *firewall_impl) Blocked() []string {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	var ret []string
	for ip, info := range fw.ips {
		if info.blocked {
			ret = append(ret, ip)
		}
	}
	slices.Sort(ret)
	return ret
}

func (fw *firewall_impl) Block(ip string) bool {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	info := fw.ips[ip]
	if info.blocked {
		return true
	}
	args := append([]string{"insert", "1", "reject", "from", ip}, fw.target()...)
	args = append(args, "comment", fw.comment)
	res, err := fw.executer.Exec("ufw", args...)
	if err != nil {
		checkError("ufw "+strings.Join(args, " "), err, res)
		return false
	}
	info.blocked = true
	info.from = fw.now()
	info.to = info.from.Add(blockDuration(fw.delay, info.occurred))
	info.occurred = min(info.occurred+1, fw.maxFailures)
	fw.ips[ip] = info
	log.Println("Blocked IP", ip, "until", info.to, ". Detected", info.occurred, "times.")
	return true
}

func (fw *firewall_impl) Release(ip string) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	fw.release(ip)
}

func (fw *firewall_impl) ReleaseAll() {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	for ip, info := range fw.ips {
		if info.blocked {
			fw.release(ip)
		}
	}
}

func (fw *firewall_impl) ReleaseIfExpired() {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	now := fw.now()
	for ip, info := range fw.ips {
		if info.blocked && now.After(info.to) {
			fw.release(ip)
		}
	}
}

func (fw *firewall_impl) release(ip string) {
	args := append([]string{"delete", "reject", "from", ip}, fw.target()...)
	res, err := fw.executer.Exec("ufw", args...)
	if err == nil {
		info := fw.ips[ip]
		info.blocked = false
		fw.ips[ip] = info
		log.Println("Released IP", ip)
	}
	checkError("ufw "+strings.Join(args, " "), err, res)
}

// delay * 2^occurred, saturated at the largest duration
func blockDuration(delay time.Duration, occurred int) time.Duration {
	if occurred >= 63 || delay > math.MaxInt64>>occurred {
		return math.MaxInt64
	}
	return delay << occurred
}

func (fw *firewall_impl) target() []string {
	if fw.port > 0 {
		return []string{"to", "any", "port", strconv.Itoa(fw.port)}
	}
	return []string{"to", "any"}
}

func checkError(cmd string, err error, res []byte) {
	if err != nil {
		log.Println("ERROR:", cmd, err, strings.TrimSpace(string(res)))
	}
}
