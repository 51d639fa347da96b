package models

import "errors"

var (
	// ErrConversationNotFound 会话记录不存在错误
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrConversationExists 会话已归档错误
	ErrConversationExists = errors.New("conversation already archived")
)
