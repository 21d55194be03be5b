// dormctl 宿舍管理引擎命令行：以指定身份调用引擎操作，结果以 JSON 输出
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"dorm-engine/internal/app"
	"dorm-engine/internal/config"
	"dorm-engine/internal/domain"
	"dorm-engine/internal/logger"
	"dorm-engine/internal/seed"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type globalFlags struct {
	configPath string
	asUser     string
	asRole     string
	seedPath   string
	verbose    bool
}

func run(args []string, out io.Writer) error {
	var g globalFlags
	flagSet := pflag.NewFlagSet("dormctl", pflag.ContinueOnError)
	flagSet.SetInterspersed(false)
	flagSet.StringVar(&g.configPath, "config", "", "YAML config file (overrides environment)")
	flagSet.StringVar(&g.asUser, "as-user", "", "acting user id")
	flagSet.StringVar(&g.asRole, "as-role", "", "acting role (trainee, dorm_supervisor, nurse, security, ...)")
	flagSet.StringVar(&g.seedPath, "seed", "", "load a YAML dataset into the store before the command")
	flagSet.BoolVarP(&g.verbose, "verbose", "v", false, "keep info-level logs")
	flagSet.Usage = func() { printUsage(out, flagSet) }

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	rest := flagSet.Args()
	if len(rest) == 0 {
		printUsage(out, flagSet)
		return errors.New("missing command")
	}
	cmd, cmdArgs, err := lookup(rest)
	if err != nil {
		return err
	}

	// 1. 加载配置
	cfg, err := config.LoadFile(g.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if !g.verbose {
		cfg.Log.Level = "warn"
	}

	// 2. 初始化日志
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "dormctl")
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	// 3. 信号处理（watch 命令依赖）
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 4. 组装引擎
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}
	defer a.Close()

	// 5. 可选：导入初始数据
	if g.seedPath != "" {
		if err := applySeed(ctx, a, g.seedPath); err != nil {
			return err
		}
	}

	// 6. 执行命令
	var actor domain.Actor
	if cmd.needsActor {
		if actor, err = g.actor(); err != nil {
			return err
		}
	}
	c := &cli{app: a, actor: actor, out: out, logger: log}
	if err := cmd.run(ctx, c, cmdArgs); err != nil && !errors.Is(err, pflag.ErrHelp) {
		return err
	}
	return nil
}

func (g globalFlags) actor() (domain.Actor, error) {
	if g.asUser == "" || g.asRole == "" {
		return domain.Actor{}, errors.New("--as-user and --as-role are required")
	}
	role, ok := domain.ParseRole(g.asRole)
	if !ok {
		return domain.Actor{}, fmt.Errorf("unknown role %q", g.asRole)
	}
	return domain.Actor{UserID: g.asUser, Role: role}, nil
}

func applySeed(ctx context.Context, a *app.App, path string) error {
	ds, err := seed.LoadFile(path)
	if err != nil {
		return err
	}
	if err := seed.Apply(ctx, a.Store, ds); err != nil {
		return fmt.Errorf("failed to apply seed %s: %w", path, err)
	}
	a.Logger.Info("Seed applied", zap.String("path", path), zap.Any("counts", ds.Counts()))
	return nil
}

func printUsage(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintln(w, "Usage: dormctl [global flags] <command> [flags] [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Global flags:")
	fmt.Fprint(w, flagSet.FlagUsages())
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, cmd := range commands {
		fmt.Fprintf(w, "  %-20s %s\n", cmd.name, cmd.summary)
	}
}
