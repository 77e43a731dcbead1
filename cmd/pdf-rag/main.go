package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/jinford/pdf-rag/cmd/pdf-rag/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ロガーは各コマンドがLOG_LEVEL/LOG_FORMAT設定から初期化する

	app := &cli.Command{
		Name:  "pdf-rag",
		Usage: "PDFドキュメントの取り込みと質問応答を行うRAGパイプライン",
		Commands: []*cli.Command{
			{
				Name:  "server",
				Usage: "サーバ関連コマンド",
				Commands: []*cli.Command{
					{
						Name:  "start",
						Usage: "HTTP APIサーバを起動",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "env",
								Usage: "環境変数ファイルパス",
								Value: ".env",
							},
							&cli.IntFlag{
								Name:  "port",
								Usage: "HTTPポート（省略時は環境変数またはデフォルトの8080）",
							},
						},
						Action: commands.ServerStartAction,
					},
				},
			},
			{
				Name:  "worker",
				Usage: "取り込みワーカー関連コマンド",
				Commands: []*cli.Command{
					{
						Name:  "start",
						Usage: "取り込みワーカーを起動",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "env",
								Usage: "環境変数ファイルパス",
								Value: ".env",
							},
						},
						Action: commands.WorkerStartAction,
					},
				},
			},
			{
				Name:  "ingest",
				Usage: "取り込み管理コマンド",
				Commands: []*cli.Command{
					{
						Name:  "file",
						Usage: "ローカルのPDFを直接エンキュー",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "env",
								Usage: "環境変数ファイルパス",
								Value: ".env",
							},
							&cli.StringFlag{
								Name:     "file",
								Usage:    "PDFファイルパス",
								Required: true,
							},
						},
						Action: commands.IngestFileAction,
					},
				},
			},
			{
				Name:  "ask",
				Usage: "取り込み済みドキュメントに質問",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "env",
						Usage: "環境変数ファイルパス",
						Value: ".env",
					},
					&cli.StringFlag{
						Name:     "question",
						Usage:    "質問文",
						Required: true,
					},
				},
				Action: commands.AskAction,
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
