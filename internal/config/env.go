package config

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// EnvPrefix starts every loader-specific environment variable.
const EnvPrefix = "HCRECALLS_"

// Lookup has the signature of os.LookupEnv.
type Lookup func(key string) (string, bool)

// Env returns a Lookup over the process environment backed by the given
// dotenv files. Process variables win over file values, and earlier files win
// over later ones. Missing files are skipped.
func Env(files ...string) (Lookup, error) {
	merged := map[string]string{}
	for _, f := range files {
		vals, err := godotenv.Read(f)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		for k, v := range vals {
			if _, ok := merged[k]; !ok {
				merged[k] = v
			}
		}
	}
	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := merged[key]
		return v, ok
	}, nil
}
