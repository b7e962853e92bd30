/*
Package resource is the configuration subsystem skills configure themselves against.

A Catalog holds the sensors and actuators of the robot plus the SlotStore backing
memory slots. For every simple state the controller asks the Catalog for a
Configurator, hands it to Skill.Configure, and afterwards reads back the declared
outcomes and any resolution failures.
*/
package resource
