package logger

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/holiman/uint256"

	"github.com/rainbow-dao/drn/types"
)

/*
Log attribute key values. Generally shouldn't be used directly, use
appropriate "attribute constructor function" instead.

Only define names here if they are common for multiple modules, module
specific names should be defined in the module.
*/
const (
	ModuleKey  = "module"
	ErrorKey   = "err"
	DataKey    = "data"
	AddressKey = "address"
	ReceiptKey = "receipt_id"
	HeightKey  = "height"
	AmountKey  = "amount"
)

/*
Error adds error to the log

	if err:= f(); err != nil {
		log.Error("calling f", logger.Error(err))
	}
*/
func Error(err error) slog.Attr {
	return slog.Any(ErrorKey, err)
}

/*
Data adds additional data field to the message.

Use of anonymous types is discouraged.
*/
func Data(d any) slog.Attr {
	return slog.Any(DataKey, d)
}

/*
Module should be used with logger.With() to create sub-logger for a bridge
component, ie

	log = log.With(logger.Module("locker"))
*/
func Module(name string) slog.Attr {
	return slog.String(ModuleKey, name)
}

// Address is the account (relayer, creditor, sender) the logging call is about.
func Address(addr types.Address) slog.Attr {
	return slog.String(AddressKey, addr.Hex())
}

// Receipt is the remote receipt identifier of the proof being processed.
func Receipt(id types.ReceiptID) slog.Attr {
	return slog.String(ReceiptKey, id.String())
}

// Height records local or remote block height.
func Height(h uint64) slog.Attr {
	return slog.Uint64(HeightKey, h)
}

// Amount records value in wei as decimal string.
func Amount(v *uint256.Int) slog.Attr {
	if v == nil {
		return slog.String(AmountKey, "0")
	}
	return slog.String(AmountKey, v.ToBig().String())
}

/*
composeAttrFmt combines attribute formatters into single func.
If input contains nil values those are discarded.
*/
func composeAttrFmt(f ...func(groups []string, a slog.Attr) slog.Attr) func(groups []string, a slog.Attr) slog.Attr {
	var fs []func(groups []string, a slog.Attr) slog.Attr
	for _, v := range f {
		if v != nil {
			fs = append(fs, v)
		}
	}
	switch len(fs) {
	case 0:
		return nil
	case 1:
		return fs[0]
	default:
		return func(groups []string, a slog.Attr) slog.Attr {
			for _, f := range fs {
				a = f(groups, a)
			}
			return a
		}
	}
}

func formatTimeAttr(format string) func(groups []string, a slog.Attr) slog.Attr {
	switch format {
	case "":
		// whatever handler does by default...
		return nil
	case "none":
		return func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.Attr{}
			}
			return a
		}
	default:
		return func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t := a.Value.Time(); !t.IsZero() {
					a.Value = slog.StringValue(t.Format(format))
				}
			}
			return a
		}
	}
}

func formatDataAttrAsJSON(groups []string, a slog.Attr) slog.Attr {
	if a.Key == DataKey && a.Value.Kind() == slog.KindAny {
		if b, err := json.Marshal(a.Value.Any()); err == nil {
			a.Value = slog.StringValue(string(b))
		}
	}
	return a
}

/*
formatAttrConsole renames the well known attributes to the names zerolog
console writer expects.
*/
func formatAttrConsole(groups []string, a slog.Attr) slog.Attr {
	if len(groups) != 0 {
		return a
	}
	switch a.Key {
	case slog.MessageKey:
		return slog.String("message", a.Value.String())
	case slog.LevelKey:
		return slog.String(slog.LevelKey, strings.ToLower(a.Value.String()))
	case ErrorKey:
		return slog.String("error", fmt.Sprint(a.Value.Any()))
	}
	return a
}
