// Command kapwatch watches the KAP disclosure feed and forwards new matches.
package main

import "github.com/JakeFAU/kapwatch/cmd"

func main() {
	cmd.Execute()
}
