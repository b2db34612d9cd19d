// Command kadtuple-node runs a single Kademlia node with the keyword and
// tuple-space overlays attached, binding a UDP socket and joining a
// bootstrap network if one is supplied.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/kademux/kadtuple/id"
	"github.com/kademux/kadtuple/kademlia"
	"github.com/kademux/kadtuple/keyword"
	"github.com/kademux/kadtuple/store"
	"github.com/kademux/kadtuple/tuplespace"
	"github.com/sirupsen/logrus"
)

// CLIConfig holds command-line configuration options for a node process.
// It contains network settings, bootstrap sources, storage selection, and
// logging options.
type CLIConfig struct {
	port          uint
	bootstrap     string
	bootstrapFile string
	dataDir       string
	logLevel      string
	help          bool
}

// parseCLIFlags parses command-line flags and returns the configuration.
// Network flags: -port
// Bootstrap flags: -bootstrap, -bootstrap-file
// Storage flags: -data-dir
// Logging flags: -log-level
// Help flag: -help
func parseCLIFlags() *CLIConfig {
	config := &CLIConfig{}

	flag.UintVar(&config.port, "port", 33445, "UDP port to bind")
	flag.StringVar(&config.bootstrap, "bootstrap", "", "comma-separated list of bootstrap host:port addresses")
	flag.StringVar(&config.bootstrapFile, "bootstrap-file", "", "file of 'host port' lines to use as bootstrap addresses")
	flag.StringVar(&config.dataDir, "data-dir", "", "directory for durable LevelDB storage (default: in-memory only)")
	flag.StringVar(&config.logLevel, "log-level", "INFO", "log level (DEBUG, INFO, WARN, ERROR)")
	flag.BoolVar(&config.help, "help", false, "show help message")

	flag.Parse()
	return config
}

func printUsage() {
	fmt.Println("kadtuple-node")
	fmt.Println("=============")
	fmt.Println()
	fmt.Println("Runs a Kademlia DHT node with the keyword-search and tuple-space")
	fmt.Println("overlays attached.")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Printf("  %s [options]\n", os.Args[0])
	fmt.Println()
	fmt.Println("Options:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Printf("  %s -port 33445\n", os.Args[0])
	fmt.Printf("  %s -port 33446 -bootstrap 127.0.0.1:33445\n", os.Args[0])
	fmt.Printf("  %s -port 33447 -bootstrap-file peers.txt -data-dir ./node3\n", os.Args[0])
}

var validLogLevels = map[string]logrus.Level{
	"DEBUG": logrus.DebugLevel,
	"INFO":  logrus.InfoLevel,
	"WARN":  logrus.WarnLevel,
	"ERROR": logrus.ErrorLevel,
}

func validateCLIConfig(config *CLIConfig) error {
	if config.port == 0 || config.port > 65535 {
		return fmt.Errorf("invalid port: %d", config.port)
	}
	if _, ok := validLogLevels[strings.ToUpper(config.logLevel)]; !ok {
		return fmt.Errorf("invalid log level: %s", config.logLevel)
	}
	return nil
}

// bootstrapAddrs resolves the -bootstrap flag and -bootstrap-file flag
// (either or both may be supplied; a file holds "host port" pairs, one per
// line, restoring the original project's file-based bootstrap loading).
func bootstrapAddrs(config *CLIConfig) ([]net.Addr, error) {
	var addrs []net.Addr

	if config.bootstrap != "" {
		for _, hostport := range strings.Split(config.bootstrap, ",") {
			hostport = strings.TrimSpace(hostport)
			if hostport == "" {
				continue
			}
			addr, err := net.ResolveUDPAddr("udp", hostport)
			if err != nil {
				return nil, fmt.Errorf("resolving bootstrap address %q: %w", hostport, err)
			}
			addrs = append(addrs, addr)
		}
	}

	if config.bootstrapFile != "" {
		fileAddrs, err := readBootstrapFile(config.bootstrapFile)
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, fileAddrs...)
	}

	return addrs, nil
}

func readBootstrapFile(path string) ([]net.Addr, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening bootstrap file: %w", err)
	}
	defer f.Close()

	var addrs []net.Addr
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, fmt.Errorf("bootstrap file %q: malformed line %q", path, line)
		}
		addr, err := net.ResolveUDPAddr("udp", fields[0]+":"+fields[1])
		if err != nil {
			return nil, fmt.Errorf("bootstrap file %q: %w", path, err)
		}
		addrs = append(addrs, addr)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading bootstrap file: %w", err)
	}
	return addrs, nil
}

func openBackend(dataDir string) (store.Backend, func() error, error) {
	if dataDir == "" {
		return store.NewMemoryStore(), func() error { return nil }, nil
	}
	db, err := store.OpenLevelDBStore(dataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("opening leveldb store at %q: %w", dataDir, err)
	}
	return db, db.Close, nil
}

func run(config *CLIConfig) error {
	if lvl, ok := validLogLevels[strings.ToUpper(config.logLevel)]; ok {
		logrus.SetLevel(lvl)
	}

	selfID, err := id.Generate()
	if err != nil {
		return fmt.Errorf("generating node id: %w", err)
	}

	backend, closeBackend, err := openBackend(config.dataDir)
	if err != nil {
		return err
	}
	defer closeBackend()

	listenAddr := fmt.Sprintf(":%d", config.port)
	node, err := kademlia.New(selfID, listenAddr, backend, kademlia.DefaultConfig())
	if err != nil {
		return fmt.Errorf("binding node: %w", err)
	}
	defer node.Close()

	// Attaching the overlays registers their extra RPC methods (tuplespace's
	// receive_tuple) on the node's transport; keyword has no RPC surface of
	// its own but shares the same node for publish/search.
	keyword.New(node)
	tuplespace.New(node)

	logrus.WithFields(logrus.Fields{
		"id":   selfID.String(),
		"addr": node.LocalAddr().String(),
	}).Info("node started")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addrs, err := bootstrapAddrs(config)
	if err != nil {
		return err
	}
	if len(addrs) > 0 {
		joinCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		err := node.Join(joinCtx, addrs)
		cancel()
		if err != nil {
			logrus.WithError(err).Warn("bootstrap join did not complete cleanly")
		}
	}

	node.RunMaintenance(ctx)
	return nil
}

func main() {
	config := parseCLIFlags()
	if config.help {
		printUsage()
		return
	}
	if err := validateCLIConfig(config); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		printUsage()
		os.Exit(1)
	}
	if err := run(config); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
