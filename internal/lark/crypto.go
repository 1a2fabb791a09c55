package lark

import (
	"encoding/json"
	"errors"
	"fmt"

	larkevent "github.com/larksuite/oapi-sdk-go/v3/event"
)

var ErrInvalidCiphertext = errors.New("lark: invalid encrypted payload")

// Decrypt opens an encrypted event body with the app's encrypt key and
// returns the JSON event inside it.
func Decrypt(encrypted, encryptKey string) (plain []byte, err error) {
	// EventDecrypt slices between the outer braces and panics when a wrong key
	// leaves them out of order.
	defer func() {
		if recover() != nil {
			plain, err = nil, ErrInvalidCiphertext
		}
	}()

	plain, err = larkevent.EventDecrypt(encrypted, encryptKey)
	if err != nil {
		return nil, fmt.Errorf("lark: decrypt event: %w", err)
	}
	if !json.Valid(plain) {
		return nil, ErrInvalidCiphertext
	}
	return plain, nil
}
