package keyvaluedb

import (
	"bytes"
	"errors"
	"reflect"
)

var (
	errInvalidKey = errors.New("invalid key")
	errValueIsNil = errors.New("value is nil")
)

func CheckKey(key []byte) error {
	if len(key) == 0 {
		return errInvalidKey
	}
	return nil
}

func CheckValue(val any) error {
	if val == nil {
		return errValueIsNil
	}
	if reflect.ValueOf(val).Kind() == reflect.Ptr && reflect.ValueOf(val).IsNil() {
		return errValueIsNil
	}
	return nil
}

func CheckKeyAndValue(key []byte, val any) error {
	if err := CheckKey(key); err != nil {
		return err
	}
	return CheckValue(val)
}

/*
Key concatenates prefix and id into DB key. Bridge components keep
different record kinds under distinct prefixes of the same DB and iterate
them with Find(prefix).
*/
func Key(prefix string, id []byte) []byte {
	k := make([]byte, 0, len(prefix)+len(id))
	k = append(k, prefix...)
	return append(k, id...)
}

/*
ForEach calls f for every record whose key starts with prefix, stops on
the first error returned by f.
*/
func ForEach(db Iteratee, prefix []byte, f func(key []byte, it Iterator) error) (err error) {
	it := db.Find(prefix)
	defer func() { err = errors.Join(err, it.Close()) }()

	for ; it.Valid() && bytes.HasPrefix(it.Key(), prefix); it.Next() {
		if err := f(it.Key(), it); err != nil {
			return err
		}
	}
	return nil
}
