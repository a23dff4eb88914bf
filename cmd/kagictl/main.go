package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	config "github.com/ueckoken/kagi/configs"
	"github.com/ueckoken/kagi/internal/application/services"
	"github.com/ueckoken/kagi/internal/core/domain/card"
	"github.com/ueckoken/kagi/internal/core/ports"
	"github.com/ueckoken/kagi/internal/infrastructure/authority"
	"github.com/ueckoken/kagi/internal/infrastructure/gpio"
	"github.com/ueckoken/kagi/internal/infrastructure/lock"
	"github.com/ueckoken/kagi/internal/infrastructure/memcache"
	infraRedis "github.com/ueckoken/kagi/internal/infrastructure/redis"
)

const usage = `usage: kagictl [--env-file FILE] <command> [args]

commands:
  servo <angle>        drive the servo to 0..180 degrees (--interactive reads angles from stdin)
  verify <idm>         verify one card through the cache and the authority
  token [--ttl 24h]    mint a bearer token for the status API
`

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "kagictl:", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	global := flag.NewFlagSet("kagictl", flag.ContinueOnError)
	envFile := global.String("env-file", "", "dotenv file to load before the environment")
	global.SetInterspersed(false)
	global.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	if err := global.Parse(args); err != nil {
		return err
	}
	if global.NArg() == 0 {
		global.Usage()
		return errors.New("missing command")
	}

	var envFiles []string
	if *envFile != "" {
		envFiles = append(envFiles, *envFile)
	}
	cfg, err := config.Load(envFiles...)
	if err != nil {
		return err
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	if level, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
		logger.SetLevel(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd, rest := global.Arg(0), global.Args()[1:]
	switch cmd {
	case "servo":
		return servoCmd(ctx, cfg, rest, stdin, stdout, logger)
	case "verify":
		return verifyCmd(ctx, cfg, rest, stdout, logger)
	case "token":
		return tokenCmd(cfg, rest, stdout)
	default:
		global.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func servoCmd(ctx context.Context, cfg *config.Config, args []string, stdin io.Reader, stdout io.Writer, logger *logrus.Logger) error {
	fs := flag.NewFlagSet("servo", flag.ContinueOnError)
	interactive := fs.BoolP("interactive", "i", false, "read one angle per line from stdin")
	if err := fs.Parse(args); err != nil {
		return err
	}

	pwm, err := gpio.OpenPWM(cfg.Hardware.PWMRoot, cfg.Hardware.PWMChip, cfg.Hardware.PWMChannel)
	if err != nil {
		return err
	}
	servo := lock.NewServo(pwm, cfg.Hardware.ServoStep, services.SleepContext, logger)
	if err := servo.Reset(ctx); err != nil {
		return fmt.Errorf("reset servo: %w", err)
	}

	if !*interactive {
		if fs.NArg() != 1 {
			return errors.New("servo needs exactly one angle")
		}
		angle, err := strconv.Atoi(fs.Arg(0))
		if err != nil {
			return fmt.Errorf("invalid angle %q", fs.Arg(0))
		}
		return servo.Move(angle)
	}

	sc := bufio.NewScanner(stdin)
	fmt.Fprint(stdout, "angle> ")
	for sc.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			fmt.Fprint(stdout, "angle> ")
			continue
		}
		angle, err := strconv.Atoi(text)
		if err != nil {
			fmt.Fprintf(stdout, "not a number: %q\n", text)
		} else if err := servo.Move(angle); err != nil {
			fmt.Fprintln(stdout, err)
		}
		fmt.Fprint(stdout, "angle> ")
	}
	return sc.Err()
}

func verifyCmd(ctx context.Context, cfg *config.Config, args []string, stdout io.Writer, logger *logrus.Logger) error {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	noCache := fs.Bool("no-cache", false, "ask the authority directly")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("verify needs exactly one idm")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	client, err := authority.NewClient(authority.Config{
		BaseURL:     cfg.Authority.BaseURL,
		APIKey:      cfg.Authority.APIKey,
		MaxAttempts: cfg.Authority.MaxAttempts,
		BackoffMin:  cfg.Authority.BackoffMin,
		BackoffMax:  cfg.Authority.BackoffMax,
	}, &http.Client{}, nil, logger)
	if err != nil {
		return err
	}

	var cache ports.Cache
	if !*noCache {
		if cfg.Cache.Backend == "memory" {
			mc, err := memcache.New(cfg.Cache.MemoryCapacity, logger)
			if err != nil {
				return err
			}
			defer mc.Close()
			cache = mc
		} else {
			rc, err := infraRedis.NewRedisClient(&cfg.Redis)
			if err != nil {
				logger.WithError(err).Warn("redis unavailable, asking the authority")
			}
			defer rc.Close()
			cache = infraRedis.NewRedisCache(rc, cfg.Cache.KeyPrefix)
		}
	}

	verifier := services.NewCardVerifier(client, cache, services.VerifierConfig{
		CacheTTL:         cfg.Cache.TTL,
		LookupTimeout:    cfg.Cache.LookupTimeout,
		AuthorityTimeout: cfg.Authority.Timeout,
	}, nil, logger)
	id := card.ParseIDm(fs.Arg(0))
	res := verifier.Verify(ctx, id)

	out := map[string]interface{}{
		"idm":     id.String(),
		"status":  res.Status,
		"source":  res.Source,
		"granted": res.Granted(),
	}
	if res.Reason != "" {
		out["reason"] = res.Reason
	}
	if res.Err != nil {
		out["error"] = res.Err.Error()
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func tokenCmd(cfg *config.Config, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	subject := fs.String("subject", "operator", "token subject")
	if err := fs.Parse(args); err != nil {
		return err
	}
	tokens, err := services.NewTokenService(cfg.Status.JWTSecret)
	if err != nil {
		return fmt.Errorf("STATUS_JWT_SECRET: %w", err)
	}
	tok, err := tokens.Issue(*subject, *ttl)
	if err != nil {
		return err
	}
	return json.NewEncoder(stdout).Encode(tok)
}
