package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

// AskAction は取り込み済みドキュメントに対する質問応答を実行するコマンドのアクション
func AskAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	question := cmd.String("question")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	result, err := appCtx.Container.ChatService.Ask(ctx, question)
	if err != nil {
		return fmt.Errorf("failed to answer question: %w", err)
	}

	fmt.Println(result.Answer)

	if len(result.Sources) > 0 {
		fmt.Println("\nSources:")
		for i, src := range result.Sources {
			fmt.Printf("  %d. %s (chunk %d, score %.3f)\n", i+1, src.DocumentID, src.SequenceIndex, src.Score)
		}
	}

	return nil
}
