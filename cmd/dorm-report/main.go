// dorm-report 以指定身份导出 Excel 报表（通行证 / 请假 / 房间占用）
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"dorm-engine/internal/app"
	"dorm-engine/internal/config"
	"dorm-engine/internal/domain"
	"dorm-engine/internal/logger"
	"dorm-engine/internal/report"
	"dorm-engine/internal/seed"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var configPath, outPath, asUser, asRole, seedPath string
	flagSet := pflag.NewFlagSet("dorm-report", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "YAML config file (overrides environment)")
	flagSet.StringVarP(&outPath, "out", "o", "", "output .xlsx path (default dorm-report-YYYYMMDD.xlsx)")
	flagSet.StringVar(&asUser, "as-user", "", "acting user id")
	flagSet.StringVar(&asRole, "as-role", "", "acting role")
	flagSet.StringVar(&seedPath, "seed", "", "load a YAML dataset into the store first")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if asUser == "" || asRole == "" {
		return errors.New("--as-user and --as-role are required")
	}
	role, ok := domain.ParseRole(asRole)
	if !ok {
		return fmt.Errorf("unknown role %q", asRole)
	}
	actor := domain.Actor{UserID: asUser, Role: role}
	if outPath == "" {
		outPath = fmt.Sprintf("dorm-report-%s.xlsx", time.Now().Format("20060102"))
	}

	// 1. 加载配置
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// 2. 初始化日志
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "dorm-report")
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	ctx := context.Background()

	// 3. 组装引擎
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}
	defer a.Close()

	// 4. 可选：导入初始数据
	if seedPath != "" {
		ds, err := seed.LoadFile(seedPath)
		if err != nil {
			return err
		}
		if err := seed.Apply(ctx, a.Store, ds); err != nil {
			return fmt.Errorf("failed to apply seed %s: %w", seedPath, err)
		}
	}

	// 5. 导出
	data, err := report.Export(ctx, a.Engine, actor)
	if err != nil {
		return err
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	log.Info("Report written",
		zap.String("path", outPath),
		zap.String("actor", actor.UserID),
		zap.String("role", string(actor.Role)),
		zap.Int("bytes", len(data)),
	)
	return nil
}
