package config

import (
	"bufio"
	"errors"
	"os"
	"strconv"
)

var errNoEnvArg = errors.New("config: no env arg")

// loadEnv reads nm from the environment, falling back to the file named
// by nm+"_FILE" (first line only), for values too sensitive to put
// directly in the environment.
func loadEnv(nm string) (string, error) {
	if s, ok := os.LookupEnv(nm); ok {
		return s, nil
	}
	if fp, ok := os.LookupEnv(nm + "_FILE"); ok {
		return loadEnvFile(fp)
	}
	return "", errNoEnvArg
}

func loadEnvFile(path string) (string, error) {
	fin, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer fin.Close()

	s := bufio.NewScanner(fin)
	s.Scan()
	if err := s.Err(); err != nil {
		return "", err
	}
	line := s.Text()
	if line == "" {
		return "", errors.New("config: env secret file is empty")
	}
	return line, nil
}

func loadEnvString(cnd *string, envName string) {
	if *cnd != "" {
		return
	}
	if v, err := loadEnv(envName); err == nil {
		*cnd = v
	}
}

func loadEnvUint16(cnd *uint16, envName string) error {
	if *cnd != 0 {
		return nil
	}
	v, err := loadEnv(envName)
	if err == errNoEnvArg {
		return nil
	} else if err != nil {
		return err
	}
	n, err := strconv.ParseUint(v, 10, 16)
	if err != nil {
		return err
	}
	*cnd = uint16(n)
	return nil
}

func loadEnvBool(cnd *bool, envName string) error {
	v, err := loadEnv(envName)
	if err == errNoEnvArg {
		return nil
	} else if err != nil {
		return err
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return err
	}
	*cnd = b
	return nil
}
