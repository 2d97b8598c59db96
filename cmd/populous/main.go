// Command populous populates a PostgreSQL database from one or more
// blueprint files describing items, fields, generators and counts.
package main

import "github.com/dbsmedya/populous/cmd/populous/cmd"

func main() {
	cmd.Execute()
}
