package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"

	"github.com/betbot/gofx/pkg/secretstore"
)

func main() {
	var (
		inPath    = flag.String("in", ".env", "input .env file path")
		dbPath    = flag.String("badger", getenv("FXCM_SECRET_DB", "data/secrets.badger"), "badger secrets db path")
		secretKey = flag.String("secret-key", getenv("FXCM_SECRET_KEY", ""), "badger encryption key (32 bytes base64/hex)")
		prefix    = flag.String("prefix", "env/", "key prefix inside badger")
		env       = flag.String("env", "", "若指定，将 FXCM_USER/FXCM_PASSWORD/FXCM_CLIENT_ID/FXCM_CLIENT_SECRET 保存为该环境的登录凭证")
	)
	flag.Parse()

	keyBytes, err := secretstore.ParseKey(*secretKey)
	if err != nil {
		fatal(err)
	}
	if keyBytes == nil {
		fatal(fmt.Errorf("secret key is required: set FXCM_SECRET_KEY or pass -secret-key"))
	}

	kv, err := godotenv.Read(*inPath)
	if err != nil {
		fatal(err)
	}

	ss, err := secretstore.Open(secretstore.OpenOptions{
		Path:          *dbPath,
		EncryptionKey: keyBytes,
	})
	if err != nil {
		fatal(err)
	}
	defer ss.Close()

	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := ss.SetString((*prefix)+k, kv[k]); err != nil {
			fatal(err)
		}
	}
	fmt.Fprintf(os.Stderr, "已导入 %d 项到 badger：%s（前缀 %s）\n", len(keys), *dbPath, *prefix)

	if *env != "" {
		creds := secretstore.Credentials{
			User:         kv["FXCM_USER"],
			Password:     kv["FXCM_PASSWORD"],
			ClientID:     kv["FXCM_CLIENT_ID"],
			ClientSecret: kv["FXCM_CLIENT_SECRET"],
		}
		if creds.User == "" || creds.Password == "" {
			fatal(fmt.Errorf("%s 中缺少 FXCM_USER 或 FXCM_PASSWORD", *inPath))
		}
		if err := ss.SaveCredentials(*env, creds); err != nil {
			fatal(err)
		}
		fmt.Fprintf(os.Stderr, "已保存环境 %s 的登录凭证\n", *env)
	}
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err.Error())
	os.Exit(1)
}
