package db

import "backoffice/pkg/config"

func configForTest() config.DBConfig {
	return config.DBConfig{Host: "db", Port: 5432, User: "app", Password: "secret", Name: "backoffice"}
}
