package transaction

import (
	"fmt"
	"sync"

	"github.com/LumeraProtocol/weave/pkg/errors"
	"github.com/LumeraProtocol/weave/pkg/merkle"
	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.RegisterStructValidation(transactionStructLevel, Transaction{})
	})
	return validate
}

// transactionStructLevel checks the rules that span several fields.
func transactionStructLevel(sl validator.StructLevel) {
	tx := sl.Current().Interface().(Transaction)
	if tx.Format != 2 {
		return
	}
	if tx.DataSize > 0 && len(tx.DataRoot) != merkle.HashSize {
		sl.ReportError(tx.DataRoot, "DataRoot", "data_root", "data_root_len", fmt.Sprint(merkle.HashSize))
	}
	if len(tx.Data) > 0 && uint64(len(tx.Data)) != tx.DataSize {
		sl.ReportError(tx.DataSize, "DataSize", "data_size", "data_size_match", fmt.Sprint(len(tx.Data)))
	}
}

// Validate checks the structure of tx: format 1 or 2, field lengths, at
// most MaxTags tags and a 32-byte data_root whenever data_size is set.
func (tx *Transaction) Validate() error {
	if tx.Format != 1 && tx.Format != 2 {
		return errors.Errorf("%w: format %d", errors.ErrUnsupportedFormat, tx.Format)
	}
	if err := getValidator().Struct(tx); err != nil {
		return errors.Errorf("%w: %w", errors.ErrInvalidTransaction, err)
	}
	return nil
}
