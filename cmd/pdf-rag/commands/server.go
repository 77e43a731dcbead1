package commands

import (
	"context"

	"github.com/urfave/cli/v3"

	apihttp "github.com/jinford/pdf-rag/internal/interface/http"
)

// ServerStartAction はHTTP APIサーバを起動するコマンドのアクション
// アップロードの受付と質問応答のみを行い、取り込みはworkerプロセスに任せる
func ServerStartAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	port := appCtx.Config.HTTP.Port
	if cmd.IsSet("port") {
		port = cmd.Int("port")
	}

	handler := apihttp.NewHandler(
		appCtx.Container.UploadService,
		appCtx.Container.ChatService,
		apihttp.WithHandlerLogger(appCtx.Logger()),
	)

	server := apihttp.NewServer(port, handler.Routes(), apihttp.WithServerLogger(appCtx.Logger()))
	return server.Run(ctx)
}
