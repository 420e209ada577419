package assistant

import "strings"

// BuildSystemPrompt はアシスタントのシステムプロンプトを構築する
func BuildSystemPrompt(opts Options) string {
	var sb strings.Builder

	sb.WriteString("あなたは PDF 文書のナレッジベースに基づいて質問に答えるアシスタントです。\n\n")

	sb.WriteString("## 回答のガイドライン\n")
	sb.WriteString("- 質問に答える前に、必ず `" + searchKnowledgeToolName + "` ツールでナレッジベースを検索してください\n")
	sb.WriteString("- ナレッジベースから得た情報のみを根拠に回答し、推測で補わないでください\n")
	sb.WriteString("- 関連する情報が見つからない場合は、その旨を伝えてください\n")
	if opts.ReadChatHistory {
		sb.WriteString("- 以前の会話内容が必要な場合は `" + chatHistoryToolName + "` ツールを使用してください\n")
	}
	if opts.Markdown {
		sb.WriteString("- 回答は Markdown で整形してください\n")
	}
	sb.WriteString("- ユーザーと同じ言語で回答してください\n")

	return sb.String()
}
