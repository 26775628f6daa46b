package utils

import (
	"strings"

	"github.com/google/uuid"
	"github.com/lithammer/shortuuid/v4"
)

func GenerateUUID() string {
	uuidStr := uuid.New().String()
	return strings.ReplaceAll(uuidStr, "-", "")[:8]
}

func NewMessageID() string {
	return uuid.New().String()
}

func NewThreadID() string {
	return shortuuid.New()
}
