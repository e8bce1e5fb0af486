// Package cliconfig loads the configuration shared by the authpipe command-line
// tools and turns it into pipeline components.
//
// Sources, highest priority first: environment variables, the YAML file given
// with -config (or AUTHPIPE_CONFIG), and a .env file in the working directory.
package cliconfig
