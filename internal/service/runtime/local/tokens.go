package local

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"

	"github.com/zjregee/alterchat/internal/models"
)

const (
	tokenEncoding = "cl100k_base"
	// perMessageTokens approximates the role and framing tokens chat APIs add.
	perMessageTokens = 3
)

func init() {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

var (
	encoding    *tiktoken.Tiktoken
	encodingErr error
	encodingOne sync.Once
)

func countTokens(text string) (int, error) {
	encodingOne.Do(func() {
		encoding, encodingErr = tiktoken.GetEncoding(tokenEncoding)
	})
	if encodingErr != nil {
		return 0, encodingErr
	}
	if text == "" {
		return 0, nil
	}
	return len(encoding.Encode(text, nil, nil)), nil
}

func messageTokens(msg *models.Message) (int, error) {
	tokens, err := countTokens(msg.Content.String())
	if err != nil {
		return 0, err
	}
	for _, call := range msg.AllToolCalls() {
		n, err := countTokens(call.Name + string(call.Args))
		if err != nil {
			return 0, err
		}
		tokens += n
	}
	return tokens + perMessageTokens, nil
}
