package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	osSignal "os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/assist-by/fleetguard/internal/config"
	"github.com/assist-by/fleetguard/internal/domain"
	"github.com/assist-by/fleetguard/internal/dust"
	"github.com/assist-by/fleetguard/internal/emergency"
	"github.com/assist-by/fleetguard/internal/exchange"
	"github.com/assist-by/fleetguard/internal/exchange/binance"
	"github.com/assist-by/fleetguard/internal/exchange/paper"
	"github.com/assist-by/fleetguard/internal/execution"
	"github.com/assist-by/fleetguard/internal/fleet"
	"github.com/assist-by/fleetguard/internal/journal"
	"github.com/assist-by/fleetguard/internal/metrics"
	"github.com/assist-by/fleetguard/internal/notification/discord"
	"github.com/assist-by/fleetguard/internal/signal"
	"github.com/assist-by/fleetguard/internal/store"
	"github.com/assist-by/fleetguard/internal/supervisor"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

// defaultPaperCash는 paper_cash가 없는 계정의 모의 거래 시작 잔고입니다
var defaultPaperCash = decimal.NewFromInt(10000)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "모든 계정의 감독 사이클을 실행합니다",
	Long: `계정 파일의 모든 계정에 대해 시작 점검 후 주기적인 감독 사이클을 실행합니다.
SIGINT/SIGTERM을 받으면 진행 중인 주문을 마친 뒤 종료합니다.

--paper를 주면 실제 주문 없이 메모리 안의 모의 거래소로 실행합니다.
가격은 바이낸스 공개 시세를 사용합니다.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

var runPaper bool

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVar(&runPaper, "paper", false, "모의 거래소로 실행")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	accounts, err := config.LoadAccounts(cfg.Paths.AccountsFile)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.Paths.StateDir, 0o755); err != nil {
		return fmt.Errorf("상태 디렉터리 생성 실패: %w", err)
	}

	ctx, stop := osSignal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Println("감독 데몬 시작...")

	// Discord 클라이언트 생성
	notifier := discord.NewClient(
		cfg.Discord.TradeWebhook,
		cfg.Discord.ErrorWebhook,
		cfg.Discord.InfoWebhook,
		discord.WithTimeout(10*time.Second),
	)

	j, err := journal.NewSQLite(cfg.Paths.JournalPath)
	if err != nil {
		return err
	}
	defer j.Close()

	st := store.New(filepath.Join(cfg.Paths.StateDir, "positions"))
	sw := emergency.New(cfg.Paths.SentinelPath)
	signals := signal.NewFileQueue(cfg.Paths.SignalDir)

	// 모의 거래 가격 조회용 공개 클라이언트
	var quoter exchange.PriceQuoter
	if runPaper {
		quoter = binance.NewClient("", "",
			binance.WithTestnet(cfg.Binance.Testnet),
			binance.WithRateLimit(cfg.Binance.RateLimit, cfg.Binance.Burst),
		)
	}

	runners := make([]fleet.Runner, 0, len(accounts.Accounts))
	for _, ac := range accounts.Accounts {
		account, err := ac.Account()
		if err != nil {
			return err
		}

		gateway, err := newGateway(ctx, cfg, ac, account, quoter)
		if err != nil {
			return err
		}

		// 먼지 블랙리스트는 계정마다 따로 둡니다
		blacklist, err := dust.Open(dust.Path(cfg.Paths.BlacklistDir, account.ID))
		if err != nil {
			return err
		}

		retrier := execution.NewRetrier(gateway,
			execution.WithRecorder(j),
			execution.WithNotifier(notifier),
			execution.WithShutdown(ctx),
		)

		runners = append(runners, supervisor.New(
			account, gateway, st, blacklist, sw, retrier, signals,
			supervisor.WithNotifier(notifier),
		))
	}

	server := startMetricsServer(cfg.App.MetricsAddr)

	mode := "실거래"
	if runPaper {
		mode = "모의 거래"
	}
	if err := notifier.SendInfo(fmt.Sprintf("🚀 감독 데몬이 시작되었습니다 (%s, 계정 %d개)", mode, len(runners))); err != nil {
		log.Printf("시작 알림 전송 실패: %v", err)
	}

	f := fleet.New(runners, fleet.WithNotifier(notifier), fleet.WithImmediateRun())
	runErr := f.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("메트릭 서버 종료 실패: %v", err)
	}

	// 종료 알림 전송
	if err := notifier.SendInfo("👋 감독 데몬이 정상적으로 종료되었습니다."); err != nil {
		log.Printf("종료 알림 전송 실패: %v", err)
	}

	log.Println("프로그램을 종료합니다.")
	return runErr
}

// newGateway는 계정의 거래소 연결을 만듭니다. 계정마다 별도 인스턴스입니다.
func newGateway(ctx context.Context, cfg *config.Config, ac config.AccountConfig, account domain.Account, quoter exchange.PriceQuoter) (exchange.Gateway, error) {
	if runPaper {
		cash := defaultPaperCash
		if ac.PaperCash > 0 {
			cash = decimal.NewFromFloat(ac.PaperCash)
		}
		return paper.NewGateway(account.QuoteAsset, cash, paper.WithPriceSource(quoter)), nil
	}

	apiKey, secretKey, err := ac.Credentials()
	if err != nil {
		return nil, err
	}
	client := binance.NewClient(apiKey, secretKey,
		binance.WithTimeout(10*time.Second),
		binance.WithTestnet(cfg.Binance.Testnet),
		binance.WithRateLimit(cfg.Binance.RateLimit, cfg.Binance.Burst),
		binance.WithQuoteAsset(account.QuoteAsset),
	)

	// 바이낸스 서버와 시간 동기화
	if err := client.SyncTime(ctx); err != nil {
		log.Printf("[%s] 바이낸스 서버 시간 동기화 실패: %v", account.ID, err)
	}
	return client, nil
}

// startMetricsServer는 /metrics 엔드포인트를 엽니다
func startMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("메트릭 서버 실행 실패: %v", err)
		}
	}()
	log.Printf("메트릭 서버 시작: %s/metrics", addr)
	return server
}
