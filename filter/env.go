package filter

/*
Here the Env used in the delivery target filters is defined.
Once this struct is fixed, it should not be changed, otherwise filters
attached to relayed messages may not compile any more (f.e. if properties
are renamed etc.)
*/

type User struct {
	Id   string
	Nick string
}

type Session struct {
	Id   string
	DmId string
}

type Source struct {
	User
}

type Target struct {
	User
}

type Env struct {
	Session Session
	Source  Source
	Target  Target
	Name    string
}
