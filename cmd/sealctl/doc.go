// Package main (cmd/sealctl) is the command line front end of the sealing
// engine.
//
// Envelope commands work on envelope documents read from --in (stdin by
// default) and written to --out (stdout by default):
//
//	sealctl --inventory-file hosts.yaml create --search role:web --value '{"password":"x"}' > db.json
//	sealctl --identity-key me.pem load --in db.json
//	sealctl --inventory-file hosts.yaml --identity-key me.pem update --search role:web --in db.json --out db.json
//	sealctl exists --in db.json
//
// Record commands address a field of a node's configuration record in the
// stores given by --storage:
//
//	sealctl --inventory-file hosts.yaml --storage file:///var/lib/records seal --node web-01 --path secrets.db --user alice --value hunter2
//	sealctl --identity-key me.pem --storage file:///var/lib/records unseal --node web-01 --path secrets.db
//
// render decrypts every envelope of a whole record the local identity can
// read, which is what a node runs to produce its plaintext configuration:
//
//	sealctl --identity-key /etc/node.pem render --in record.json --out /etc/app/config.json
//
// serve exposes the record commands over HTTP, see package httpserver. Callers
// authenticate with bearer tokens created by the token command, which prints
// the token on stdout and the tokens file entry on stderr:
//
//	sealctl token --name alice
//	sealctl --inventory-file hosts.yaml --identity-key sealer.pem --storage file:///var/lib/records serve --api-tokens tokens.yaml
package main
