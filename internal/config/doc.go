// Package config loads engine configuration.
//
// # Configuration Sources
//
// Values are resolved in this order, later sources winning:
//
//  1. Default()
//  2. A YAML file: HSBC_CONFIG_FILE, else config.yaml or configs/config.yaml
//  3. Environment variables prefixed HSBC_, after loading a .env file
//
// # Environment Variables
//
// Variable names follow the struct layout:
//
//	HSBC_SERVER_PORT=8080
//	HSBC_PROCESSING_MAX_FILE_SIZE=104857600
//	HSBC_RULESTORE_DRIVER=sqlite
//	HSBC_RULESTORE_DSN=rules.db
//	HSBC_EVENTS_DRIVER=kafka
//	HSBC_EVENTS_BROKERS=localhost:9092,localhost:9093
//
// Load validates the result and returns every problem it finds at once.
package config
