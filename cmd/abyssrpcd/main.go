// Command abyssrpcd is an XML-RPC server: an Abyss-style connection engine
// (internal/abyss) terminates HTTP, internal/registry dispatches calls, and
// a small net/http dashboard exposes the method catalog and call audit log.
//
// The process structure — two listeners, a PID file, optional syslog,
// graceful shutdown on SIGINT/SIGTERM — is driven by github.com/urfave/cli/v2,
// with serve and hash-password as subcommands.
package main

import (
	"context"
	"fmt"
	"log"
	"log/syslog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/ocochard/abyssrpc/internal/abyss"
	"github.com/ocochard/abyssrpc/internal/config"
	"github.com/ocochard/abyssrpc/internal/registry"
	"github.com/ocochard/abyssrpc/internal/rpcvalue"
	"github.com/ocochard/abyssrpc/internal/rpcxml"
)

var debugEnabled bool

func main() {
	app := &cli.App{
		Name:  "abyssrpcd",
		Usage: "XML-RPC server built on the Abyss connection engine",
		Commands: []*cli.Command{
			serveCommand(),
			hashPasswordCommand(),
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatalf("[FATAL] %v", err)
	}
}

func hashPasswordCommand() *cli.Command {
	return &cli.Command{
		Name:      "hash-password",
		Usage:     "Generate a bcrypt hash for a password and exit",
		ArgsUsage: "<password>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("hash-password requires exactly one argument")
			}
			hash, err := bcrypt.GenerateFromPassword([]byte(c.Args().Get(0)), bcrypt.DefaultCost)
			if err != nil {
				return fmt.Errorf("failed to generate bcrypt hash: %w", err)
			}
			fmt.Printf("Bcrypt hash: %s\n\n", string(hash))
			fmt.Println("Add this to your configuration file:")
			fmt.Println("[auth]")
			fmt.Println("user = \"admin\"")
			fmt.Printf("password = \"%s\"\n", string(hash))
			fmt.Println("password_format = \"bcrypt\"")
			return nil
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the RPC and dashboard listeners",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "TOML configuration file path"},
			&cli.StringFlag{Name: "rpc-listen", Value: "0.0.0.0:8080", Usage: "Abyss RPC listen address"},
			&cli.StringFlag{Name: "dashboard-listen", Value: "localhost:8081", Usage: "Status dashboard listen address"},
			&cli.StringFlag{Name: "auth-user", Value: "", Usage: "HTTP Basic Auth username (empty = no authentication)"},
			&cli.StringFlag{Name: "auth-password", Value: "", Usage: "HTTP Basic Auth password"},
			&cli.StringFlag{Name: "auth-password-format", Value: "plain", Usage: "'plain' or 'bcrypt'"},
			&cli.StringFlag{Name: "audit-db", Value: "/var/run/abyssrpcd/audit.db", Usage: "SQLite audit log path"},
			&cli.StringFlag{Name: "pidfile", Value: "/var/run/abyssrpcd/abyssrpcd.pid", Usage: "PID file path"},
			&cli.StringFlag{Name: "syslog", Value: "", Usage: "Syslog facility (daemon, local0-local7), empty for stderr"},
			&cli.BoolFlag{Name: "debug", Usage: "Enable verbose DEBUG logging"},
			&cli.BoolFlag{Name: "apache-dialect", Usage: "Accept and emit ex:i8/ex:nil extensions"},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	rpcListen := c.String("rpc-listen")
	dashboardListen := c.String("dashboard-listen")
	authUser := c.String("auth-user")
	authPassword := c.String("auth-password")
	authFormat := c.String("auth-password-format")
	auditDB := c.String("audit-db")
	pidFile := c.String("pidfile")
	syslogFacility := c.String("syslog")
	debugEnabled = c.Bool("debug")

	if cfgPath := c.String("config"); cfgPath != "" {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("failed to load config file: %w", err)
		}
		log.Printf("[INFO] loaded configuration from %s", cfgPath)
		rpcListen = config.MergeString(cfg.Network.RPCListen, rpcListen, "0.0.0.0:8080")
		dashboardListen = config.MergeString(cfg.Network.DashboardListen, dashboardListen, "localhost:8081")
		authUser = config.MergeString(cfg.Auth.User, authUser, "")
		authPassword = config.MergeString(cfg.Auth.Password, authPassword, "")
		authFormat = config.MergeString(cfg.Auth.PasswordFormat, authFormat, "plain")
		auditDB = config.MergeString(cfg.Storage.AuditDB, auditDB, "/var/run/abyssrpcd/audit.db")
		pidFile = config.MergeString(cfg.Storage.PidFile, pidFile, "/var/run/abyssrpcd/abyssrpcd.pid")
		syslogFacility = config.MergeString(cfg.Logging.Syslog, syslogFacility, "")
		debugEnabled = config.MergeBool(cfg.Logging.Debug, debugEnabled)
	}

	if authFormat != "plain" && authFormat != "bcrypt" {
		return fmt.Errorf("invalid -auth-password-format: %s (must be 'plain' or 'bcrypt')", authFormat)
	}

	if syslogFacility != "" {
		priority, err := parseSyslogFacility(syslogFacility)
		if err != nil {
			return err
		}
		writer, err := syslog.New(priority, "abyssrpcd")
		if err != nil {
			return fmt.Errorf("failed to connect to syslog: %w", err)
		}
		log.SetOutput(writer)
		log.SetFlags(0)
	}

	dialect := rpcxml.DialectOriginal
	if c.Bool("apache-dialect") {
		dialect = rpcxml.DialectApache
	}

	if dir := filepath.Dir(auditDB); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create audit db directory %s: %w", dir, err)
		}
	}
	if dir := filepath.Dir(pidFile); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create pidfile directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(pidFile, []byte(strconv.Itoa(os.Getpid())+"\n"), 0644); err != nil {
		return fmt.Errorf("failed to write pid file: %w", err)
	}
	defer func() {
		if err := os.Remove(pidFile); err != nil {
			log.Printf("[WARN] failed to remove pid file: %v", err)
		}
	}()

	audit, err := registry.OpenAuditLog(auditDB)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer audit.Close()

	reg := registry.NewRegistry(dialect)
	reg.Audit = audit
	reg.DebugTraces = debugEnabled
	registry.RegisterIntrospection(reg)
	registerDemoMethods(reg)

	guard := &registry.AuthGuard{
		Realm:    "abyssrpcd",
		Username: authUser,
		Password: authPassword,
		Format:   registry.PasswordFormat(authFormat),
	}

	ln, err := net.Listen("tcp", rpcListen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", rpcListen, err)
	}
	server := abyss.NewServer(func(peerIP string, body []byte) []byte {
		return reg.Dispatch(context.Background(), peerIP, body)
	})
	go func() {
		log.Printf("[INFO] RPC listening on %s", rpcListen)
		if err := server.Serve(ln); err != nil {
			log.Fatalf("[FATAL] RPC server failed: %v", err)
		}
	}()

	dashMux := http.NewServeMux()
	dashMux.HandleFunc("/", dashboardHandler(reg, audit))
	go func() {
		log.Printf("[INFO] dashboard listening on %s", dashboardListen)
		if err := http.ListenAndServe(dashboardListen, guard.Wrap(dashMux)); err != nil {
			log.Fatalf("[FATAL] dashboard server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Printf("[INFO] shutdown signal received, exiting")
	return nil
}

func dashboardHandler(reg *registry.Registry, audit *registry.AuditLog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, reg.MethodCatalogHTML())
		fmt.Fprint(w, "<h1>Recent calls</h1><ul>")
		calls, err := audit.RecentCalls(50)
		if err != nil {
			log.Printf("[ERROR] dashboard: failed to load recent calls: %v", err)
		}
		for _, call := range calls {
			status := "ok"
			if call.Failed {
				status = fmt.Sprintf("fault %d: %s", call.FaultNo, call.FaultMsg)
			}
			fmt.Fprintf(w, "<li>%s %s from %s (%s)</li>", call.At.Format("2006-01-02 15:04:05"), call.Method, call.PeerIP, status)
		}
		fmt.Fprint(w, "</ul>")
	}
}

// registerDemoMethods adds a couple of illustrative methods so a fresh
// install of abyssrpcd answers something beyond system.*.
func registerDemoMethods(reg *registry.Registry) {
	reg.Register("echo", "Returns its single string argument unchanged.", "string:string",
		func(ctx context.Context, params *rpcvalue.Value) (*rpcvalue.Value, *rpcvalue.Fault) {
			f := rpcvalue.NewFault()
			n := rpcvalue.ArraySize(params, f)
			if f.Fail {
				return nil, f
			}
			if n != 1 {
				f.Set(rpcvalue.CodeTypeError, "echo expects exactly one argument, got %d", n)
				return nil, f
			}
			elem := rpcvalue.ArrayGet(params, 0, f)
			if f.Fail {
				return nil, f
			}
			return rpcvalue.Acquire(elem), nil
		})

	reg.Register("sum", "Returns the sum of its int32 arguments.", "int:array",
		func(ctx context.Context, params *rpcvalue.Value) (*rpcvalue.Value, *rpcvalue.Fault) {
			f := rpcvalue.NewFault()
			n := rpcvalue.ArraySize(params, f)
			if f.Fail {
				return nil, f
			}
			var total int32
			for i := 0; i < n; i++ {
				elem := rpcvalue.ArrayGet(params, i, f)
				if f.Fail {
					return nil, f
				}
				total += rpcvalue.AsInt32(elem, f)
				if f.Fail {
					return nil, f
				}
			}
			return rpcvalue.NewInt32(total), nil
		})
}

func parseSyslogFacility(facility string) (syslog.Priority, error) {
	facilities := map[string]syslog.Priority{
		"daemon": syslog.LOG_DAEMON | syslog.LOG_INFO,
		"local0": syslog.LOG_LOCAL0 | syslog.LOG_INFO,
		"local1": syslog.LOG_LOCAL1 | syslog.LOG_INFO,
		"local2": syslog.LOG_LOCAL2 | syslog.LOG_INFO,
		"local3": syslog.LOG_LOCAL3 | syslog.LOG_INFO,
		"local4": syslog.LOG_LOCAL4 | syslog.LOG_INFO,
		"local5": syslog.LOG_LOCAL5 | syslog.LOG_INFO,
		"local6": syslog.LOG_LOCAL6 | syslog.LOG_INFO,
		"local7": syslog.LOG_LOCAL7 | syslog.LOG_INFO,
	}
	priority, ok := facilities[strings.ToLower(facility)]
	if !ok {
		return 0, fmt.Errorf("unknown facility %q, supported: daemon, local0-local7", facility)
	}
	return priority, nil
}
