package demo

import (
	"context"
	"database/sql"
	"fmt"
	"io"

	_ "github.com/mattn/go-sqlite3"

	"github.com/canonical/sqlmatch"
)

type Person struct {
	Name     string `db:"name"`
	Height   int    `db:"height_cm"`
	HomeTown string `db:"home_town"`
}

func (Person) TableName() string { return "people" }

type Place struct {
	Name       string `db:"town_name"`
	Population int    `db:"population"`
}

func (Place) TableName() string { return "location" }

func example(w io.Writer) error {
	sqldb, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return err
	}
	defer sqldb.Close()
	_, err = sqldb.Exec(`
		CREATE TABLE people (
			name text,
			height_cm integer,
			home_town text
		);
		CREATE TABLE location (
			town_name text,
			population integer
		);`)
	if err != nil {
		return err
	}

	var people = []Person{{"Jim", 150, "Kabul"}, {"Saba", 162, "Berlin"}, {"Dave", 169, "Brasília"}, {"Sophie", 174, "Berlin"}, {"Kiri", 168, "Cape Town"}}
	var places = []Place{{"Kabul", 13000000}, {"Berlin", 3677472}, {"Brasília", 3039444}, {"Cape Town", 4710000}}
	for _, p := range people {
		if _, err := sqldb.Exec("INSERT INTO people VALUES (?, ?, ?)", p.Name, p.Height, p.HomeTown); err != nil {
			return err
		}
	}
	for _, l := range places {
		if _, err := sqldb.Exec("INSERT INTO location VALUES (?, ?)", l.Name, l.Population); err != nil {
			return err
		}
	}

	db := sqlmatch.NewDB(sqldb)
	reg := sqlmatch.NewRegistry()
	p := sqlmatch.MustProbe[Person](reg)
	l := sqlmatch.MustProbe[Place](reg)
	jim := people[0]

	tallerThan := sqlmatch.From(p, sqlmatch.WithNaming(sqlmatch.TagNaming)).
		Where(sqlmatch.On(sqlmatch.MustField(reg, &p.Height), sqlmatch.Gt(jim.Height))).
		OrderBy(sqlmatch.Asc(sqlmatch.MustField(reg, &p.Height))).
		MustPrepare()

	// Find people taller than Jim
	iter := db.Query(context.Background(), tallerThan).Iter()
	for iter.Next() {
		var person Person
		if err := iter.Get(&person); err != nil {
			iter.Close()
			return err
		}
		fmt.Fprintf(w, "%s is taller than %s.\n", person.Name, jim.Name)
	}
	if err := iter.Close(); err != nil {
		return err
	}

	tallerCity := sqlmatch.From(p, sqlmatch.WithNaming(sqlmatch.TagNaming)).
		Select(
			sqlmatch.Col(sqlmatch.MustField(reg, &l.Name)),
			sqlmatch.Col(sqlmatch.MustField(reg, &p.Name)),
		).
		Where(sqlmatch.On(sqlmatch.MustField(reg, &p.HomeTown), sqlmatch.JoinOn(sqlmatch.MustField(reg, &l.Name)))).
		Where(sqlmatch.On(sqlmatch.MustField(reg, &p.Height), sqlmatch.Gt(jim.Height))).
		OrderBy(sqlmatch.Asc(sqlmatch.MustField(reg, &p.Height))).
		MustPrepare()

	// Find cities with people taller than Jim
	var tallCities, tallPeople []string
	err = db.Query(context.Background(), tallerCity).GetAll(&tallCities, &tallPeople)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "This is a list of cities with people taller than Jim: %v\n", tallCities)
	fmt.Fprintf(w, "This is a list of people taller than Jim: %v\n", tallPeople)
	return nil
}
